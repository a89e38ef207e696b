// Command scraper runs one ingestion pass and exits, for cron-driven or
// manual refreshes outside the server process.
//
// Modes:
//
//	-mode=cinemas    refresh the cinema directory (fetch + geocode)
//	-mode=showtimes  run the full cinema×date showtime ingestion (default)
//
// Behavior is configured through the same environment variables as the
// server.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/geocode"
	"github.com/cinemap/go-showtimes-backend/internal/ingest"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
	"github.com/cinemap/go-showtimes-backend/internal/scraper"
	"github.com/cinemap/go-showtimes-backend/internal/sysutil"
)

func main() {
	mode := flag.String("mode", "showtimes", "what to ingest: cinemas or showtimes")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.MustLoad()

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	sysutil.SetLogLevel(cfg.LogLevel)

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	provider := scraper.NewClient(cfg.Scrape)
	ctx := context.Background()

	switch *mode {
	case "cinemas":
		geo := geocode.NewNominatim(cfg.Geocode)
		report, err := ingest.SyncCinemas(ctx, db, provider, geo)
		if err != nil {
			log.Fatal().Err(err).Msg("cinema sync failed")
		}
		log.Info().
			Int("total", report.Total).
			Int("upserted", report.Upserted).
			Int("geocoded", report.Geocoded).
			Int("failed", report.Failed).
			Msg("cinema sync complete")
	case "showtimes":
		runner := ingest.NewRunner(db, provider, cfg.Scrape)
		report, err := runner.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("ingestion run failed")
		}
		log.Info().
			Int("tasks", report.Tasks).
			Int("failures", report.Failures).
			Int("movies", report.Stats.Movies).
			Int("showtimes", report.Stats.Showtimes).
			Dur("duration", report.Duration).
			Msg("ingestion run complete")
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode, expected cinemas or showtimes")
	}
}
