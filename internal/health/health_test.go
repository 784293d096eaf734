package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct{ down atomic.Bool }

func (f *fakePinger) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func status(t *testing.T, hs *health.Server, svc string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: svc})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestWatcher_FollowsPings(t *testing.T) {
	t.Parallel()

	hs := health.NewServer()
	db := &fakePinger{}
	w := NewWatcher(hs, db, time.Second, zaptest.NewLogger(t))

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, w.Check(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs, Service))

	db.down.Store(true)
	w.Check(context.Background())
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs, Service))

	db.down.Store(false)
	w.Check(context.Background())
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs, ""))
}

func TestWatcher_NoStoreAlwaysServing(t *testing.T) {
	t.Parallel()

	hs := health.NewServer()
	w := NewWatcher(hs, nil, 0, nil)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, w.Check(context.Background()))
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	hs := health.NewServer()
	w := NewWatcher(hs, &fakePinger{}, 10*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return")
	}
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs, Service))
}
