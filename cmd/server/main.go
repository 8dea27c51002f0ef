// Command server is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/database"
	"github.com/Shivanand-hulikatti/event-registration/internal/handler"
	"github.com/Shivanand-hulikatti/event-registration/internal/logger"
	"github.com/Shivanand-hulikatti/event-registration/internal/ratelimit"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"github.com/Shivanand-hulikatti/event-registration/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New(logger.Config{Level: "info"})
		l.Error("load config", zap.Error(err))
		return err
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Development: cfg.Log.Development,
	})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Telemetry ──────────────────────────────────────────────────────
	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		log.Error("init telemetry", zap.Error(err))
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewAdmissionMetrics()
	if err != nil {
		log.Error("register admission metrics", zap.Error(err))
		return err
	}

	// ── 2. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Error("database", zap.Error(err))
		return err
	}
	defer pool.Close()

	if cfg.App.AutoMigrate {
		if err := database.Migrate(pool, log); err != nil {
			log.Error("migrate", zap.Error(err))
			return err
		}
	}

	// ── 3. Rate limiter ───────────────────────────────────────────────────
	var limiter *ratelimit.Limiter
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		limiter = ratelimit.New(rdb, ratelimit.Config{
			Requests:  cfg.RateLimit.Requests,
			Window:    cfg.RateLimit.Window,
			KeyPrefix: cfg.App.Name + ":register:",
		})
		if err := limiter.Ping(ctx); err != nil {
			log.Warn("redis unreachable, rate limiting fails open until it recovers", zap.Error(err))
		}
	}

	// ── 4. Wire up layers ─────────────────────────────────────────────────
	loc, err := cfg.Registration.Location()
	if err != nil {
		log.Error("load timezone", zap.Error(err))
		return err
	}

	store := repository.NewStore(pool, cfg.Registration.LockTimeout)
	admission := service.NewAdmission(store, service.AdmissionConfig{
		MaxRetries:   cfg.Registration.MaxRetries,
		RetryBackoff: cfg.Registration.RetryBackoff,
	}, log, metrics)
	eventSvc := service.NewEventService(
		repository.NewEventRepository(pool),
		repository.NewAttendeeRepository(pool),
		admission,
		loc,
	)
	eventHandler := handler.NewEventHandler(eventSvc, log)

	// ── 5. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(log))
	r.Use(handler.CORS(cfg.Server.AllowOrigins))

	r.Get("/health", handler.HealthCheck(pool))

	var registerLimit func(http.Handler) http.Handler
	if limiter != nil {
		registerLimit = handler.RateLimit(limiter, log)
	}
	eventHandler.Routes(r, registerLimit)

	// ── 6. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server error", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
