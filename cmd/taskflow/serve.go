package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"taskflow/backend/internal/auth"
	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API together with the overdue digest worker when
WORKER_ENABLED=true. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := prometheus.Register(monitoring.NewStoreCollector(a.tasks.StoreMetrics())); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return fmt.Errorf("register store metrics: %w", err)
		}
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: float64(cfg.RateLimit.RequestsPerMin) / 60,
			Burst:             cfg.RateLimit.BurstSize,
			IdleTTL:           cfg.RateLimit.CleanupInterval,
		})
		go limiter.Run(ctx)
	}

	if cfg.Worker.Enabled {
		stop, err := a.startWorker(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      handlers.NewRouter(a.routerConfig(limiter)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("environment", cfg.Server.Environment),
		)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := withTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

func (a *app) healthChecker() *monitoring.HealthChecker {
	health := monitoring.NewHealthChecker()
	health.Register("database", a.db.HealthContext)
	health.Register("store", a.backend.Health)
	return health
}

func (a *app) routerConfig(limiter *middleware.RateLimiter) handlers.RouterConfig {
	var provisioner auth.Provisioner
	if endpoint := a.cfg.Provisioning.Endpoint; endpoint != "" {
		provisioner = services.NewProvisioningClient(endpoint, a.cfg.Provisioning.Timeout)
	}
	return handlers.RouterConfig{
		Tasks:        a.tasks,
		Auth:         a.auth,
		Provisioning: a.provisioning,
		Provisioner:  provisioner,
		Health:       a.healthChecker(),
		RateLimiter:  limiter,
		CORSOrigins:  a.cfg.Provisioning.CORSOrigins,
		Logger:       a.log,
	}
}

// startWorker runs the digest consumer and its daily schedule on the store's
// Redis connection. The returned func stops both.
func (a *app) startWorker(ctx context.Context) (func(), error) {
	if a.redis == nil {
		return nil, errors.New("worker requires the redis store driver")
	}

	loc := time.Local
	if tz := a.cfg.Worker.Timezone; tz != "" && tz != "Local" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("digest timezone: %w", err)
		}
	}

	w := worker.NewWorker(worker.WorkerConfig{
		RedisClient:  a.redis.Client(),
		PollInterval: a.cfg.Worker.PollInterval,
		Queues:       a.cfg.Worker.Queues,
		Logger:       a.log,
	})
	w.RegisterHandler(worker.JobTypeOverdueDigest, worker.NewOverdueDigestHandler(a.tasks, a.log))

	scheduler := worker.NewScheduler(loc, a.log)
	if _, err := scheduler.ScheduleDigest(ctx, worker.NewJobQueue(a.redis.Client()), a.cfg.Worker.DigestTime); err != nil {
		return nil, fmt.Errorf("schedule digest: %w", err)
	}

	w.Start(ctx, a.cfg.Worker.Concurrency)
	scheduler.Start()
	return func() {
		scheduler.Stop()
		w.Stop()
	}, nil
}
