// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns
// such as tracing, correlation IDs, logging, panic recovery, metrics,
// CORS, compression, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/geocode"
	"github.com/cinemap/go-showtimes-backend/internal/http/handlers"
	"github.com/cinemap/go-showtimes-backend/internal/http/middleware"
	"github.com/cinemap/go-showtimes-backend/internal/ingest"
	"github.com/cinemap/go-showtimes-backend/internal/services"
)

// cinemaSyncShim adapts the free ingest.SyncCinemas function to the
// handlers.CinemaSyncer interface so the scrape handler stays decoupled
// from the concrete wiring.
type cinemaSyncShim struct {
	db       *gorm.DB
	provider ingest.Provider
	geo      geocode.Geocoder
}

// SyncCinemas proxies ingest.SyncCinemas.
func (s cinemaSyncShim) SyncCinemas(ctx context.Context) (ingest.CinemaSyncReport, error) {
	return ingest.SyncCinemas(ctx, s.db, s.provider, s.geo)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given
// Gin engine: observability (tracing, metrics), rate limiting, CORS,
// compression, health and metrics endpoints, and the versioned public API.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP)
//  8. CORS, then gzip compression
func RegisterRoutes(r *gin.Engine, db *gorm.DB, provider ingest.Provider, geo geocode.Geocoder, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			// Force ACAO: * even for requests without an Origin header.
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Showtime trees compress well.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db
	nearbySvc := services.NewNearbyService(db, cfg.Query)
	suggestSvc := services.NewSuggestService(db, cfg.Query)
	optionsSvc := services.NewOptionsService(db)
	h := handlers.New(nearbySvc, suggestSvc, optionsSvc)

	runner := ingest.NewRunner(db, provider, cfg.Scrape)
	scrapeH := handlers.NewScrapeHandler(runner, cinemaSyncShim{db: db, provider: provider, geo: geo})

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Search
		api.GET("/movies/nearby", h.MoviesNearby)
		api.POST("/movies/nearby", h.MoviesNearbyPost)
		api.GET("/movies/:id", h.MovieDetails)

		// Typeahead and filter catalogue
		api.GET("/suggest", h.Suggest)
		api.GET("/filters/options", h.FilterOptions)

		// On-demand ingestion
		api.POST("/scrape", scrapeH.Trigger)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
