package ingest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/domain"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

var (
	ingestTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_tasks_total",
		Help: "Ingestion tasks processed, by outcome.",
	}, []string{"status"})

	ingestMoviesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_movies_total",
		Help: "Movie records upserted by ingestion runs.",
	})

	ingestShowtimesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_showtimes_total",
		Help: "Showtime rows written by ingestion runs.",
	})

	ingestRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_run_duration_seconds",
		Help:    "Wall-clock duration of full ingestion runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// SeenSet tracks movie identifiers already fully processed during one run,
// so the same movie playing at many cinemas is normalized once. Safe for
// concurrent use; the zero-value nil pointer disables deduplication.
type SeenSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// NewSeenSet returns an empty run-scoped set.
func NewSeenSet() *SeenSet {
	return &SeenSet{m: make(map[string]struct{})}
}

// CheckAndMark reports whether id was already present and marks it either
// way.
func (s *SeenSet) CheckAndMark(id string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[id]
	if !ok {
		s.m[id] = struct{}{}
	}
	return ok
}

// task is one (cinema, date) cell of the run matrix.
type task struct {
	cinema domain.Cinema
	date   time.Time
}

// RunReport summarizes one full ingestion run.
type RunReport struct {
	Tasks    int
	Failures int
	Stats    Stats
	Duration time.Duration
}

// Runner drives a full ingestion run: every known cinema crossed with the
// configured date horizon, fanned out over a bounded worker pool. Task
// failures are independent; a run only aborts on context cancellation.
type Runner struct {
	db       *gorm.DB
	provider Provider
	ingestor *Ingestor
	cfg      config.ScrapeConfig

	sleep func(ctx context.Context, d time.Duration)
}

// NewRunner wires a Runner onto the shared database handle and provider.
func NewRunner(db *gorm.DB, provider Provider, cfg config.ScrapeConfig) *Runner {
	return &Runner{
		db:       db,
		provider: provider,
		ingestor: NewIngestor(db),
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Run executes one full ingestion pass and reports what it wrote.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	started := time.Now()
	report := RunReport{}

	cinemas, err := repo.ListCinemas(ctx, r.db)
	if err != nil {
		return report, err
	}

	tasks := r.buildTasks(cinemas, started)
	report.Tasks = len(tasks)
	seen := NewSeenSet()

	log.Info().
		Int("cinemas", len(cinemas)).
		Int("days", r.cfg.Days).
		Int("tasks", len(tasks)).
		Int("workers", r.cfg.Workers).
		Msg("ingest: run started")

	for start := 0; start < len(tasks); start += r.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		end := start + r.cfg.BatchSize
		if end > len(tasks) {
			end = len(tasks)
		}

		r.runBatch(ctx, tasks[start:end], seen, &report)

		if end < len(tasks) {
			r.sleep(ctx, r.cfg.BatchCooldown)
		}
	}

	report.Duration = time.Since(started)
	ingestRunDuration.Observe(report.Duration.Seconds())
	log.Info().
		Int("tasks", report.Tasks).
		Int("failures", report.Failures).
		Int("movies", report.Stats.Movies).
		Int("showtimes", report.Stats.Showtimes).
		Dur("duration", report.Duration).
		Msg("ingest: run finished")
	return report, ctx.Err()
}

// runBatch fans one batch of tasks out over the worker pool and merges the
// results into report.
func (r *Runner) runBatch(ctx context.Context, batch []task, seen *SeenSet, report *RunReport) {
	ch := make(chan task)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range ch {
				stats, err := r.runTask(ctx, t, seen)
				mu.Lock()
				if err != nil {
					report.Failures++
				}
				report.Stats.Add(stats)
				mu.Unlock()
			}
		}()
	}

	for _, t := range batch {
		select {
		case ch <- t:
		case <-ctx.Done():
			close(ch)
			wg.Wait()
			return
		}
	}
	close(ch)
	wg.Wait()
}

// runTask fetches, merges, and persists one (cinema, date) cell under its
// own deadline. A short random pause before the fetch spreads request
// timing across the pool.
func (r *Runner) runTask(ctx context.Context, t task, seen *SeenSet) (Stats, error) {
	if r.cfg.JitterMax > 0 {
		r.sleep(ctx, time.Duration(rand.Int63n(int64(r.cfg.JitterMax))))
	}

	taskCtx, cancel := context.WithTimeout(ctx, r.cfg.TaskTimeout)
	defer cancel()

	listing, err := r.provider.FetchListing(taskCtx, t.cinema.ExternalID, t.date)
	if err != nil {
		r.failTask(t, err, "fetch listing")
		return Stats{}, err
	}
	showtimes, err := r.provider.FetchShowtimes(taskCtx, t.cinema.ExternalID, t.date)
	if err != nil {
		r.failTask(t, err, "fetch showtimes")
		return Stats{}, err
	}

	merged := Merge(listing, showtimes)
	stats, err := r.ingestor.IngestCinemaDay(taskCtx, &t.cinema, merged, seen)
	if err != nil {
		r.failTask(t, err, "persist")
		return stats, err
	}

	ingestTasksTotal.WithLabelValues("ok").Inc()
	ingestMoviesTotal.Add(float64(stats.Movies))
	ingestShowtimesTotal.Add(float64(stats.Showtimes))
	return stats, nil
}

func (r *Runner) failTask(t task, err error, stage string) {
	ingestTasksTotal.WithLabelValues("error").Inc()
	log.Warn().
		Err(err).
		Str("stage", stage).
		Str("cinema_external_id", t.cinema.ExternalID).
		Str("date", t.date.Format("2006-01-02")).
		Msg("ingest: task failed")
}

// buildTasks crosses every cinema with the date horizon starting today.
func (r *Runner) buildTasks(cinemas []domain.Cinema, now time.Time) []task {
	days := r.cfg.Days
	if days < 1 {
		days = 1
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	tasks := make([]task, 0, len(cinemas)*days)
	for d := 0; d < days; d++ {
		date := today.AddDate(0, 0, d)
		for _, c := range cinemas {
			tasks = append(tasks, task{cinema: c, date: date})
		}
	}
	return tasks
}

// sleepCtx pauses for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
