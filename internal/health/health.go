// Package health reports service readiness over the standard gRPC health protocol.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name clients can ask about besides the overall "" status.
const Service = "tasktracker.v1.API"

// Pinger is satisfied by the database handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher flips the health status according to periodic store pings.
type Watcher struct {
	hs       *health.Server
	db       Pinger
	interval time.Duration
	log      *zap.Logger
}

// NewWatcher constructs a Watcher. A nil db means there is no external store
// and the service is always SERVING.
func NewWatcher(hs *health.Server, db Pinger, interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{hs: hs, db: db, interval: interval, log: log}
}

// Register attaches a fresh health server to s and returns it.
func Register(s *grpc.Server) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// Run checks immediately and then every interval until ctx is done, at which
// point all services are reported NOT_SERVING.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.hs.Shutdown()
			return
		case <-t.C:
			w.Check(ctx)
		}
	}
}

// Check pings the store once and publishes the result.
func (w *Watcher) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if w.db != nil {
		pctx, cancel := context.WithTimeout(ctx, w.interval/2)
		err := w.db.Ping(pctx)
		cancel()
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			w.log.Warn("store ping failed", zap.Error(err))
		}
	}
	w.hs.SetServingStatus("", st)
	w.hs.SetServingStatus(Service, st)
	return st
}
