// Command server runs the showtimes API: the geographic search and
// suggestion endpoints, plus the optional in-process ingestion schedule.
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

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/geocode"
	httpapi "github.com/cinemap/go-showtimes-backend/internal/http"
	"github.com/cinemap/go-showtimes-backend/internal/ingest"
	"github.com/cinemap/go-showtimes-backend/internal/observability"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
	"github.com/cinemap/go-showtimes-backend/internal/schedule"
	"github.com/cinemap/go-showtimes-backend/internal/scraper"
	"github.com/cinemap/go-showtimes-backend/internal/sysutil"
)

const version = "1.0.0"

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin failed")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	provider := scraper.NewClient(cfg.Scrape)
	geo := geocode.NewNominatim(cfg.Geocode)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, provider, geo, cfg)

	// Optional recurring ingestion inside the server process.
	runner := ingest.NewRunner(db, provider, cfg.Scrape)
	sched, err := schedule.Start(cfg.Scrape.Cron, func(ctx context.Context) {
		if _, err := runner.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled ingestion run failed")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	schedule.Stop(sched)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown error")
	}
}
