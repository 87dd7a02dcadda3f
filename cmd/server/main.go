// Command server runs the TeamHub HTTP API.
//
// @title                      TeamHub API
// @version                    1.0
// @description                Teams and users behind a uniform success/error envelope.
// @BasePath                   /api
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/config"
	httpapi "github.com/tbourn/teamhub/internal/http"
	"github.com/tbourn/teamhub/internal/observability"
	"github.com/tbourn/teamhub/internal/repo"
	"github.com/tbourn/teamhub/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownGrace = 15 * time.Second
	purgeEvery    = 10 * time.Minute
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := sysutil.SetupLogger("info", false, os.Stderr)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server exited cleanly")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		purgeLoop(gctx, db, log, purgeEvery)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// purgeLoop removes expired sessions and idempotency records until ctx ends.
func purgeLoop(ctx context.Context, db *gorm.DB, log zerolog.Logger, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			purge(ctx, db, log, now)
		}
	}
}

func purge(ctx context.Context, db *gorm.DB, log zerolog.Logger, now time.Time) {
	sessions, err := repo.PurgeExpiredSessions(ctx, db, now)
	if err != nil {
		log.Warn().Err(err).Msg("purge sessions")
	}
	keys, err := repo.PurgeExpiredIdempotency(ctx, db, now)
	if err != nil {
		log.Warn().Err(err).Msg("purge idempotency keys")
	}
	if sessions > 0 || keys > 0 {
		log.Debug().Int64("sessions", sessions).Int64("idempotency_keys", keys).Msg("purged expired records")
	}
}
