package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/domain"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

// Stats summarizes one ingestion call.
type Stats struct {
	Movies    int // movie records upserted
	Showtimes int // showtime rows written (inserted or refreshed)
	Failed    int // movie records that errored and were skipped
}

// Add folds other into s.
func (s *Stats) Add(other Stats) {
	s.Movies += other.Movies
	s.Showtimes += other.Showtimes
	s.Failed += other.Failed
}

// Ingestor persists merged movie records and their screenings. Each movie
// is written in its own transaction, so one malformed record rolls back
// alone and never poisons the rest of the batch.
type Ingestor struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIngestor wires an Ingestor onto the shared database handle.
func NewIngestor(db *gorm.DB) *Ingestor {
	return &Ingestor{db: db, now: time.Now}
}

// IngestCinemaDay writes every merged movie playing at cinema, along with
// its screenings. seen deduplicates movie metadata work across the tasks
// of one run; pass nil to always do the full upsert. Returns batch stats;
// the only returned errors are context cancellation, everything per-record
// is counted and logged.
func (ing *Ingestor) IngestCinemaDay(ctx context.Context, cinema *domain.Cinema, merged []MergedMovie, seen *SeenSet) (Stats, error) {
	var stats Stats
	for i := range merged {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s, err := ing.ingestMovie(ctx, cinema, &merged[i], seen)
		if err != nil {
			stats.Failed++
			log.Warn().
				Err(err).
				Str("movie_external_id", merged[i].ExternalID).
				Str("cinema_external_id", cinema.ExternalID).
				Msg("ingest: movie record skipped")
			continue
		}
		stats.Add(s)
	}
	return stats, nil
}

// ingestMovie upserts one movie and its screenings inside a transaction.
// A movie already processed earlier in the run skips the metadata upsert
// and only contributes screenings.
func (ing *Ingestor) ingestMovie(ctx context.Context, cinema *domain.Cinema, mm *MergedMovie, seen *SeenSet) (Stats, error) {
	var stats Stats
	err := ing.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var movie *domain.Movie

		if seen.CheckAndMark(mm.ExternalID) {
			existing, err := repo.GetMovieByExternalID(ctx, tx, mm.ExternalID)
			if err == nil {
				movie = existing
			}
			// Fall through to the full upsert when the earlier task's write
			// has not landed yet.
		}

		if movie == nil {
			genreNames := NormalizeList(probe(mm.Payload, "genre", "genres"))
			languageNames := NormalizeList(probe(mm.Payload, "languages", "language"))

			genreIDs, err := resolveTags(ctx, tx, genreNames, repo.GetOrCreateGenre)
			if err != nil {
				return err
			}
			languageIDs, err := resolveTags(ctx, tx, languageNames, repo.GetOrCreateLanguage)
			if err != nil {
				return err
			}

			movie = ing.buildMovie(mm, genreNames, languageNames, genreIDs, languageIDs)
			if err := repo.UpsertMovie(ctx, tx, movie); err != nil {
				return err
			}
			if len(genreIDs) > 0 {
				if err := repo.ReplaceMovieGenres(ctx, tx, movie, genreIDs); err != nil {
					return err
				}
			}
			if len(languageIDs) > 0 {
				if err := repo.ReplaceMovieLanguages(ctx, tx, movie, languageIDs); err != nil {
					return err
				}
			}
			stats.Movies++
		}

		for _, show := range mm.Shows {
			st, ok := ing.buildShowtime(cinema, movie, show)
			if !ok {
				continue
			}
			written, err := repo.UpsertShowtime(ctx, tx, st)
			if err != nil {
				return err
			}
			if written {
				stats.Showtimes++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// buildMovie normalizes the raw metadata payload into a domain record.
func (ing *Ingestor) buildMovie(mm *MergedMovie, genreNames, languageNames []string, genreIDs, languageIDs []uint) *domain.Movie {
	p := mm.Payload
	title := FirstString(p, "title")

	m := &domain.Movie{
		ExternalID:    mm.ExternalID,
		Slug:          slug.Make(title),
		Title:         title,
		OriginalTitle: strPtr(FirstString(p, "originalTitle", "original_title")),
		ReleaseDate:   ParseDate(probe(p, "release_date", "releaseDate")),
		Genres:        JoinTags(genreNames),
		Languages:     JoinTags(languageNames),
		Duration:      ParseDuration(probe(p, "runtime", "duration")),
		Synopsis:      strPtr(StripHTML(FirstString(p, "synopsis", "synopsisFull", "synopsis_full"))),
		PosterURL:     strPtr(posterURL(p)),
		Director:      strPtr(strings.Join(NormalizeList(probe(p, "director", "directors")), ", ")),
		IsPremiere:    mm.IsPremiere,
		LastUpdate:    ing.now().UTC(),
	}
	if len(genreIDs) > 0 {
		m.PrimaryGenreID = &genreIDs[0]
	}
	if len(languageIDs) > 0 {
		m.PrimaryLanguageID = &languageIDs[0]
	}
	return m
}

// showtimeLayouts are the start timestamp shapes the provider emits.
var showtimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// buildShowtime splits a screening's combined timestamp into the date and
// time components of the composite fact key. Unparseable timestamps drop
// the screening, not the movie.
func (ing *Ingestor) buildShowtime(cinema *domain.Cinema, movie *domain.Movie, show ShowEntry) (*domain.Showtime, bool) {
	var ts time.Time
	var err error
	for _, layout := range showtimeLayouts {
		ts, err = time.Parse(layout, show.StartsAt)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, false
	}

	return &domain.Showtime{
		CinemaID:         cinema.ID,
		MovieID:          movie.ID,
		StartDate:        time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:        ts.Format("15:04"),
		DiffusionVersion: show.DiffusionVersion,
		Format:           show.Format,
		ReservationURL:   strPtr(show.ReservationURL),
		LastUpdate:       ing.now().UTC(),
	}, true
}

// resolveTags maps tag names to surrogate IDs through a get-or-create
// helper, preserving order.
func resolveTags(ctx context.Context, tx *gorm.DB, names []string, getOrCreate func(context.Context, *gorm.DB, string) (uint, error)) ([]uint, error) {
	ids := make([]uint, 0, len(names))
	for _, name := range names {
		id, err := getOrCreate(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// probe returns the first present, non-empty raw value among keys.
func probe(m Raw, keys ...string) any {
	v, _ := firstValue(m, keys...)
	return v
}

// posterURL handles both the flat string form and the nested object form
// the provider uses for poster references.
func posterURL(p Raw) string {
	v, ok := firstValue(p, "poster", "posterUrl", "poster_url")
	if !ok {
		return ""
	}
	if obj, ok := v.(Raw); ok {
		return FirstString(obj, "url", "href")
	}
	return coerceString(v)
}

// strPtr returns nil for the empty string so absent fields persist as NULL
// and stay transparent to the coalescing upsert.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
