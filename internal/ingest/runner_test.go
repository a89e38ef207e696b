package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

// stubProvider serves canned payloads and can be told to fail for a given
// cinema.
type stubProvider struct {
	mu        sync.Mutex
	failFor   string
	listCalls int

	listing   []Raw
	showtimes []Raw
	cinemas   []Raw
}

func (s *stubProvider) FetchCinemas(ctx context.Context) ([]Raw, error) {
	return s.cinemas, nil
}

func (s *stubProvider) FetchListing(ctx context.Context, cinemaID string, date time.Time) ([]Raw, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	if cinemaID == s.failFor {
		return nil, errors.New("provider unavailable")
	}
	return s.listing, nil
}

func (s *stubProvider) FetchShowtimes(ctx context.Context, cinemaID string, date time.Time) ([]Raw, error) {
	if cinemaID == s.failFor {
		return nil, errors.New("provider unavailable")
	}
	return s.showtimes, nil
}

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		Workers:       2,
		TaskTimeout:   5 * time.Second,
		BatchSize:     100,
		BatchCooldown: 0,
		JitterMax:     0,
		Days:          2,
	}
}

func TestRunner_RunWritesAllTasks(t *testing.T) {
	db := newIngestDB(t)
	seedCinema(t, db, "c1")
	seedCinema(t, db, "c2")

	provider := &stubProvider{
		listing: []Raw{{"id_allocine": "m1", "title": "Le Film"}},
		showtimes: []Raw{{
			"title": "Le Film",
			"showtimes": []any{
				Raw{"startsAt": "2025-09-10T14:00:00", "diffusionVersion": "ORIGINAL"},
			},
		}},
	}

	report, err := NewRunner(db, provider, testScrapeConfig()).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 2 cinemas × 2 days.
	if report.Tasks != 4 {
		t.Fatalf("Tasks = %d, want 4", report.Tasks)
	}
	if report.Failures != 0 {
		t.Fatalf("Failures = %d, want 0", report.Failures)
	}
	// The seen set dedupes the movie across tasks.
	if report.Stats.Movies != 1 {
		t.Fatalf("Movies = %d, want 1 (deduplicated)", report.Stats.Movies)
	}
	if provider.listCalls != 4 {
		t.Fatalf("listing fetches = %d, want one per task", provider.listCalls)
	}

	// Every task upserts the same (cinema, movie, date, time, version)
	// facts, so there is exactly one row per cinema.
	total, err := repo.CountShowtimes(context.Background(), db)
	if err != nil || total != 2 {
		t.Fatalf("showtimes = %d (%v), want 2", total, err)
	}
}

func TestRunner_TaskFailuresAreIndependent(t *testing.T) {
	db := newIngestDB(t)
	seedCinema(t, db, "c1")
	seedCinema(t, db, "c2")

	provider := &stubProvider{
		failFor: "c1",
		listing: []Raw{{"id_allocine": "m1", "title": "Le Film"}},
		showtimes: []Raw{{
			"title": "Le Film",
			"showtimes": []any{
				Raw{"startsAt": "2025-09-10T14:00:00"},
			},
		}},
	}

	report, err := NewRunner(db, provider, testScrapeConfig()).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Failures != 2 {
		t.Fatalf("Failures = %d, want 2 (one per c1 task)", report.Failures)
	}

	// The healthy cinema's screenings still landed.
	total, err := repo.CountShowtimes(context.Background(), db)
	if err != nil || total != 1 {
		t.Fatalf("showtimes = %d (%v), want 1", total, err)
	}
}

func TestRunner_CancelledContextStopsRun(t *testing.T) {
	db := newIngestDB(t)
	seedCinema(t, db, "c1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &stubProvider{}
	_, err := NewRunner(db, provider, testScrapeConfig()).Run(ctx)
	if err == nil {
		t.Fatalf("expected context error from cancelled run")
	}
}

func TestBuildTasks_CrossesCinemasAndDays(t *testing.T) {
	db := newIngestDB(t)
	c := seedCinema(t, db, "c1")

	r := NewRunner(db, &stubProvider{}, testScrapeConfig())
	cinemas, err := repo.ListCinemas(context.Background(), db)
	if err != nil {
		t.Fatalf("list cinemas: %v", err)
	}

	now := time.Date(2025, 9, 10, 16, 45, 0, 0, time.UTC)
	tasks := r.buildTasks(cinemas, now)
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if !tasks[0].date.Equal(time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first date = %v, want today at midnight", tasks[0].date)
	}
	if !tasks[1].date.Equal(time.Date(2025, 9, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("second date = %v, want tomorrow", tasks[1].date)
	}
	if tasks[0].cinema.ExternalID != c.ExternalID {
		t.Fatalf("task cinema = %q", tasks[0].cinema.ExternalID)
	}
}
