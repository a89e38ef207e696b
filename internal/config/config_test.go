package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Fatalf("Port default = %q", cfg.Port)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath default = %q", cfg.APIBasePath)
	}
	if cfg.DB.SQLitePath != "showtimes.db" {
		t.Fatalf("SQLitePath default = %q", cfg.DB.SQLitePath)
	}
	if cfg.Scrape.Workers != 5 {
		t.Fatalf("Workers default = %d", cfg.Scrape.Workers)
	}
	if cfg.Scrape.Days != 7 {
		t.Fatalf("Days default = %d", cfg.Scrape.Days)
	}
	if cfg.Scrape.TaskTimeout != 45*time.Second {
		t.Fatalf("TaskTimeout default = %v", cfg.Scrape.TaskTimeout)
	}
	if cfg.Query.DefaultRadiusKm != 20 {
		t.Fatalf("DefaultRadiusKm default = %v", cfg.Query.DefaultRadiusKm)
	}
	if cfg.Query.DetailRadiusKm != 5 {
		t.Fatalf("DetailRadiusKm default = %v", cfg.Query.DetailRadiusKm)
	}
	if cfg.Query.SuggestLimit != 10 {
		t.Fatalf("SuggestLimit default = %d", cfg.Query.SuggestLimit)
	}
	if cfg.Geocode.MinDelay != time.Second {
		t.Fatalf("MinDelay default = %v", cfg.Geocode.MinDelay)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode default = %q", cfg.GinMode)
	}
}

func TestLoad_EnvOverridesAndNormalization(t *testing.T) {
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("SCRAPE_WORKERS", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("GIN_MODE", "weird")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("APIBasePath = %q, want /api/v2", cfg.APIBasePath)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Scrape.Workers != 3 {
		t.Fatalf("Workers = %d, want 3", cfg.Scrape.Workers)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q, want release fallback", cfg.GinMode)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad log level", "LOG_LEVEL", "noisy", "LOG_LEVEL"},
		{"zero workers", "SCRAPE_WORKERS", "0", "SCRAPE_WORKERS"},
		{"zero days", "SCRAPE_DAYS", "0", "SCRAPE_DAYS"},
		{"zero suggest limit", "SUGGEST_LIMIT", "0", "SUGGEST_LIMIT"},
		{"zero burst", "RATE_BURST", "0", "RATE_BURST"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"api":      "/api",
		"/api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
