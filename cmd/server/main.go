// Command tasks-server starts the task tracker HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/tasktracker/internal/config"
	"github.com/and161185/tasktracker/internal/health"
	"github.com/and161185/tasktracker/internal/limiter"
	"github.com/and161185/tasktracker/internal/logging"
	"github.com/and161185/tasktracker/internal/migrate"
	"github.com/and161185/tasktracker/internal/repository"
	"github.com/and161185/tasktracker/internal/repository/memory"
	"github.com/and161185/tasktracker/internal/repository/postgres"
	"github.com/and161185/tasktracker/internal/server/httpapi"
	"github.com/and161185/tasktracker/internal/service"
	"github.com/and161185/tasktracker/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, prepares storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users repository.UserRepository
		tasks repository.TaskRepository
		lim   limiter.Limiter
		pings health.Pinger
	)
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("in-memory storage: data is lost on restart")
		users, tasks = memory.NewUserRepo(), memory.NewTaskRepo()
	default:
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("connect db", zap.Error(err))
		}
		defer db.Close()

		users, tasks = postgres.NewUserRepo(db), postgres.NewTaskRepo(db)
		lim = limiter.NewPG(db.Pool, limiter.Config{
			Window:      cfg.LoginWindow,
			MaxFailures: cfg.LoginMaxFailures,
			BlockFor:    cfg.LoginBlock,
		})
		pings = db
	}

	// Services
	authSvc := service.NewAuthService(users, token.NewService([]byte(cfg.JWTSecret), cfg.TokenTTL), lim, cfg.StoreTimeout).
		WithLogger(logger.Named("auth"))
	taskSvc := service.NewTaskService(tasks, cfg.StoreTimeout)
	statsSvc := service.NewStatsService(tasks, cfg.StoreTimeout)

	api := httpapi.New(authSvc, taskSvc, statsSvc, logger)
	proxies, _ := cfg.TrustedProxyNets() // checked by config.Validate
	e := httpapi.NewEcho(api, httpapi.Options{
		BodyLimit:      cfg.BodyLimit,
		AllowOrigins:   cfg.CORSOrigins,
		TrustedProxies: proxies,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Health (gRPC)
	var gs *grpc.Server
	if cfg.HealthAddr != "" {
		gs = grpc.NewServer()
		hs := health.Register(gs)
		go health.NewWatcher(hs, pings, cfg.HealthInterval, logger).Run(ctx)

		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			logger.Fatal("listen health", zap.Error(err))
		}
		go func() {
			logger.Info("health listening", zap.String("addr", cfg.HealthAddr))
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("health: %w", err)
			}
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shCtx.Done():
			gs.Stop()
		}
	}

	logger.Info("shutdown complete")
}
