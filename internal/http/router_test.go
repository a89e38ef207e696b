package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/domain"
	"github.com/cinemap/go-showtimes-backend/internal/geocode"
	"github.com/cinemap/go-showtimes-backend/internal/ingest"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

// --- tiny fakes to satisfy the provider and geocoder ports ---

type fakeProvider struct{}

func (fakeProvider) FetchCinemas(context.Context) ([]ingest.Raw, error) { return nil, nil }
func (fakeProvider) FetchListing(context.Context, string, time.Time) ([]ingest.Raw, error) {
	return nil, nil
}
func (fakeProvider) FetchShowtimes(context.Context, string, time.Time) ([]ingest.Raw, error) {
	return nil, nil
}

type fakeGeocoder struct{}

func (fakeGeocoder) Locate(context.Context, string) geocode.Location {
	return geocode.Location{Precision: domain.PrecisionFailed}
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:routerdb?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(basePath string) config.Config {
	return config.Config{
		APIBasePath: basePath,
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Scrape:      config.ScrapeConfig{Workers: 1, TaskTimeout: time.Second, BatchSize: 10, Days: 1},
		Query: config.QueryConfig{
			DefaultRadiusKm:       20,
			DetailRadiusKm:        5,
			SuggestLimit:          10,
			SuggestScanCandidates: 100,
		},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), fakeProvider{}, fakeGeocoder{}, testConfig("/api/v1"))

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	// RequestID middleware tagged the response
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (DELETE /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newTestDB(t), fakeProvider{}, fakeGeocoder{}, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_APIEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), fakeProvider{}, fakeGeocoder{}, testConfig("/api/v1"))

	// A nearby search without any center is rejected up front.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/movies/nearby", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("centerless nearby = %d, want 400", w.Code)
	}
	var envelope struct {
		RequestID string `json:"request_id"`
		Code      string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("error envelope: %v (%s)", err, w.Body.String())
	}
	if envelope.Code != "center_unresolved" || envelope.RequestID == "" {
		t.Fatalf("envelope = %+v", envelope)
	}

	// Suggest answers an empty store with an empty list.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/suggest?q=rex", nil)
	req.Header.Set("Accept-Encoding", "identity")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /suggest = %d (%s)", w.Code, w.Body.String())
	}

	// A blank query still answers 200 with an empty suggestion list.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/suggest?q=", nil)
	req.Header.Set("Accept-Encoding", "identity")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("blank suggest = %d (%s)", w.Code, w.Body.String())
	}
	var suggestResp struct {
		Suggestions []any `json:"suggestions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &suggestResp); err != nil {
		t.Fatalf("suggest body: %v (%s)", err, w.Body.String())
	}
	if suggestResp.Suggestions == nil || len(suggestResp.Suggestions) != 0 {
		t.Fatalf("blank suggest body = %s, want empty suggestions array", w.Body.String())
	}

	// Filter options come back even when the catalogue is empty.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/filters/options", nil)
	req.Header.Set("Accept-Encoding", "identity")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /filters/options = %d", w.Code)
	}

	// Scrape triggers asynchronously.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/scrape", bytes.NewBufferString(`{"mode":"showtimes"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /scrape = %d (%s)", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_NearbyLenientParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), fakeProvider{}, fakeGeocoder{}, testConfig("/api/v1"))

	// A garbled date drops the filter and a non-positive radius falls back
	// to the configured default; neither fails the request.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/movies/nearby?lat=48.85&lon=2.35&date=not-a-date&radius_km=-5", nil)
	req.Header.Set("Accept-Encoding", "identity")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("lenient nearby = %d (%s), want 200", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("nearby body: %v (%s)", err, w.Body.String())
	}
	if resp.Count != 0 {
		t.Fatalf("empty store returned %d movies", resp.Count)
	}

	// A non-numeric radius is still rejected.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/movies/nearby?lat=48.85&lon=2.35&radius_km=wide", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric radius = %d, want 400", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, body := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != body {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_cinemaSyncShim_Proxies(t *testing.T) {
	db := newTestDB(t)

	shim := cinemaSyncShim{db: db, provider: fakeProvider{}, geo: fakeGeocoder{}}
	report, err := shim.SyncCinemas(context.Background())
	if err != nil {
		t.Fatalf("SyncCinemas: %v", err)
	}
	if report.Total != 0 {
		t.Fatalf("empty provider produced %d records", report.Total)
	}
}
