// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, the relational store, the listing provider, the geocoder,
// ingestion concurrency, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the relational store. When DatabaseURL is set the server
// connects to Postgres; otherwise it falls back to a local SQLite file,
// which is what tests and dev setups use.
type DBConfig struct {
	DatabaseURL string // DATABASE_URL (Postgres DSN)
	SQLitePath  string // DB_PATH (fallback store)
}

// ScrapeConfig bounds the ingestion pipeline: pool size, per-task timeout,
// batching, and the politeness delays the upstream provider expects.
type ScrapeConfig struct {
	ProviderBaseURL string        // PROVIDER_BASE_URL (listing provider API)
	Workers         int           // SCRAPE_WORKERS (concurrent cinema×date tasks)
	TaskTimeout     time.Duration // SCRAPE_TASK_TIMEOUT (per external fetch)
	BatchSize       int           // SCRAPE_BATCH_SIZE (cinemas per batch)
	BatchCooldown   time.Duration // SCRAPE_BATCH_COOLDOWN (pause between batches)
	JitterMax       time.Duration // SCRAPE_JITTER_MAX (random delay after each task)
	Days            int           // SCRAPE_DAYS (date window per run, today..today+N-1)
	Cron            string        // SCRAPE_CRON (optional in-process schedule, empty = off)
}

// GeocodeConfig configures the external address-resolution service.
type GeocodeConfig struct {
	BaseURL   string        // GEOCODE_BASE_URL (Nominatim-compatible endpoint)
	UserAgent string        // GEOCODE_USER_AGENT (required by Nominatim ToS)
	Country   string        // GEOCODE_COUNTRY (suffix appended to queries)
	MinDelay  time.Duration // GEOCODE_MIN_DELAY (between requests per worker)
}

// QueryConfig holds the query-engine defaults from the public API contract.
type QueryConfig struct {
	DefaultRadiusKm       float64 // QUERY_DEFAULT_RADIUS_KM (nearby list view)
	DetailRadiusKm        float64 // QUERY_DETAIL_RADIUS_KM (single-movie view)
	SuggestLimit          int     // SUGGEST_LIMIT (default suggestion cap)
	SuggestScanCandidates int     // SUGGEST_SCAN_CANDIDATES (fold-fallback scan bound)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	APIBasePath string

	DB      DBConfig
	Scrape  ScrapeConfig
	Geocode GeocodeConfig
	Query   QueryConfig

	// Rate limiting (HTTP edge)
	RateRPS   float64
	RateBurst int

	CORS CORSConfig
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			DatabaseURL: getenv("DATABASE_URL", ""),
			SQLitePath:  getenv("DB_PATH", "showtimes.db"),
		},

		Scrape: ScrapeConfig{
			ProviderBaseURL: getenv("PROVIDER_BASE_URL", ""),
			Workers:         getint("SCRAPE_WORKERS", 5),
			TaskTimeout:     getdur("SCRAPE_TASK_TIMEOUT", 45*time.Second),
			BatchSize:       getint("SCRAPE_BATCH_SIZE", 200),
			BatchCooldown:   getdur("SCRAPE_BATCH_COOLDOWN", 30*time.Second),
			JitterMax:       getdur("SCRAPE_JITTER_MAX", 500*time.Millisecond),
			Days:            getint("SCRAPE_DAYS", 7),
			Cron:            getenv("SCRAPE_CRON", ""),
		},

		Geocode: GeocodeConfig{
			BaseURL:   getenv("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: getenv("GEOCODE_USER_AGENT", "cinemap-showtimes"),
			Country:   getenv("GEOCODE_COUNTRY", "France"),
			MinDelay:  getdur("GEOCODE_MIN_DELAY", time.Second),
		},

		Query: QueryConfig{
			DefaultRadiusKm:       getfloat("QUERY_DEFAULT_RADIUS_KM", 20),
			DetailRadiusKm:        getfloat("QUERY_DETAIL_RADIUS_KM", 5),
			SuggestLimit:          getint("SUGGEST_LIMIT", 10),
			SuggestScanCandidates: getint("SUGGEST_SCAN_CANDIDATES", 1000),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-showtimes-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.DB.DatabaseURL == "" && strings.TrimSpace(cfg.DB.SQLitePath) == "" {
		return cfg, errors.New("one of DATABASE_URL or DB_PATH must be set")
	}
	if cfg.Scrape.Workers < 1 {
		return cfg, errors.New("SCRAPE_WORKERS must be >= 1")
	}
	if cfg.Scrape.TaskTimeout <= 0 {
		return cfg, errors.New("SCRAPE_TASK_TIMEOUT must be > 0")
	}
	if cfg.Scrape.BatchSize < 1 {
		return cfg, errors.New("SCRAPE_BATCH_SIZE must be >= 1")
	}
	if cfg.Scrape.Days < 1 {
		return cfg, errors.New("SCRAPE_DAYS must be >= 1")
	}
	if cfg.Geocode.MinDelay < 0 {
		return cfg, errors.New("GEOCODE_MIN_DELAY must be >= 0")
	}
	if cfg.Query.DefaultRadiusKm <= 0 || cfg.Query.DetailRadiusKm <= 0 {
		return cfg, errors.New("query radius defaults must be > 0")
	}
	if cfg.Query.SuggestLimit < 1 {
		return cfg, errors.New("SUGGEST_LIMIT must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
