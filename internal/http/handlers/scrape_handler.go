package handlers

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cinemap/go-showtimes-backend/internal/ingest"
)

// ShowtimeRunner triggers a full showtime ingestion run.
type ShowtimeRunner interface {
	Run(ctx context.Context) (ingest.RunReport, error)
}

// CinemaSyncer refreshes the cinema directory.
type CinemaSyncer interface {
	SyncCinemas(ctx context.Context) (ingest.CinemaSyncReport, error)
}

// ScrapeHandler exposes on-demand ingestion. Runs execute in the
// background; at most one is in flight at a time, since concurrent full
// runs would only fight over the same provider and rows.
type ScrapeHandler struct {
	runner ShowtimeRunner
	syncer CinemaSyncer
	busy   atomic.Bool
}

// NewScrapeHandler constructs a ScrapeHandler.
func NewScrapeHandler(runner ShowtimeRunner, syncer CinemaSyncer) *ScrapeHandler {
	return &ScrapeHandler{runner: runner, syncer: syncer}
}

type scrapeRequest struct {
	// Mode selects what to refresh: "showtimes" (default) or "cinemas".
	Mode string `json:"mode"`
}

// Trigger handles POST /scrape. It answers 202 immediately and 409 when a
// run is already in flight.
func (h *ScrapeHandler) Trigger(c *gin.Context) {
	var req scrapeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
			return
		}
	}

	mode := req.Mode
	switch mode {
	case "":
		mode = "showtimes"
	case "showtimes", "cinemas":
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mode must be \"showtimes\" or \"cinemas\"")
		return
	}

	if !h.busy.CompareAndSwap(false, true) {
		fail(c, http.StatusConflict, ErrCodeScrapeRunning, "an ingestion run is already in progress")
		return
	}

	go func() {
		defer h.busy.Store(false)
		ctx := context.Background()

		switch mode {
		case "cinemas":
			report, err := h.syncer.SyncCinemas(ctx)
			if err != nil {
				log.Error().Err(err).Msg("scrape: cinema sync failed")
				return
			}
			log.Info().
				Int("upserted", report.Upserted).
				Int("geocoded", report.Geocoded).
				Int("failed", report.Failed).
				Msg("scrape: cinema sync done")
		default:
			report, err := h.runner.Run(ctx)
			if err != nil {
				log.Error().Err(err).Msg("scrape: run failed")
				return
			}
			log.Info().
				Int("tasks", report.Tasks).
				Int("failures", report.Failures).
				Int("movies", report.Stats.Movies).
				Int("showtimes", report.Stats.Showtimes).
				Msg("scrape: run done")
		}
	}()

	ok(c, http.StatusAccepted, gin.H{"status": "started", "mode": mode})
}
