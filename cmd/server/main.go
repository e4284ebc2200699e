// Command server is the peer-finder backend entrypoint. It loads
// configuration from the environment (optionally a .env file), wires the
// snapshot store, queue service, scheduler and HTTP router, and runs the
// server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-peerfinder-backend/internal/config"
	httpapi "github.com/tbourn/go-peerfinder-backend/internal/http"
	"github.com/tbourn/go-peerfinder-backend/internal/notify"
	"github.com/tbourn/go-peerfinder-backend/internal/observability"
	"github.com/tbourn/go-peerfinder-backend/internal/repo"
	"github.com/tbourn/go-peerfinder-backend/internal/sched"
	"github.com/tbourn/go-peerfinder-backend/internal/services"
	"github.com/tbourn/go-peerfinder-backend/internal/store"
	"github.com/tbourn/go-peerfinder-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	st := store.New(repo.NewSQLiteBackend(db), cfg.SnapshotKey, store.WithMaxRetries(cfg.StoreMaxRetries))

	svc := services.NewQueueService(st, notify.NewLog(log.Logger), cfg.StatusCheckURL)
	svc.FallbackMaxAge = cfg.Fallback.MaxAge

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, svc, cfg)

	var scheduler *sched.Scheduler
	if cfg.Fallback.Enabled {
		scheduler, err = sched.New(cfg.Fallback.Spec, svc)
		if err != nil {
			log.Fatal().Err(err).Str("spec", cfg.Fallback.Spec).Msg("invalid fallback cron spec")
		}
		scheduler.Start()
		log.Info().Str("spec", cfg.Fallback.Spec).Dur("max_age", cfg.Fallback.MaxAge).Msg("fallback scheduler started")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("scheduler stop")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}
