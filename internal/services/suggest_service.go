package services

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/domain"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

// Suggestion is one typeahead entry. Kind is "movie", "cinema", or
// "city"; coordinates are present for kinds that can seed a map center.
type Suggestion struct {
	Kind      string   `json:"kind"`
	ID        string   `json:"id,omitempty"`
	Slug      string   `json:"slug,omitempty"`
	Label     string   `json:"label"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// SuggestService answers typeahead queries across movies, cinemas, and
// cities, in that priority order, accent- and case-insensitively.
//
// The primary matching path runs unaccent() in SQL. Stores without the
// extension (SQLite, a Postgres missing it) make that query fail, which
// flips the service onto a client-side path: scan a bounded window of
// candidates and fold diacritics in Go.
type SuggestService struct {
	db     *gorm.DB
	cfg    config.QueryConfig
	tracer trace.Tracer
}

// NewSuggestService wires the service onto the shared database handle.
func NewSuggestService(db *gorm.DB, cfg config.QueryConfig) *SuggestService {
	return &SuggestService{
		db:     db,
		cfg:    cfg,
		tracer: otel.Tracer("services/suggest"),
	}
}

// Suggest returns at most limit suggestions for q. Movies fill the list
// first, then cinemas, then cities; the cap truncates whatever kind is in
// progress when it is reached. A blank query matches nothing and yields an
// empty list rather than an error.
func (s *SuggestService) Suggest(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	ctx, span := s.tracer.Start(ctx, "SuggestService.Suggest")
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return []Suggestion{}, nil
	}
	if limit <= 0 || limit > s.cfg.SuggestLimit {
		limit = s.cfg.SuggestLimit
	}

	out, err := s.suggestSQL(ctx, q, limit)
	if err == nil {
		return out, nil
	}
	log.Debug().Err(err).Msg("suggest: unaccent path unavailable, folding client-side")
	return s.suggestFolded(ctx, q, limit)
}

func (s *SuggestService) suggestSQL(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	out := make([]Suggestion, 0, limit)

	movies, err := repo.SuggestMovies(ctx, s.db, q, limit)
	if err != nil {
		return nil, err
	}
	for _, m := range movies {
		if len(out) >= limit {
			return out, nil
		}
		out = append(out, movieSuggestion(m))
	}

	cinemas, err := repo.SuggestCinemas(ctx, s.db, q, limit-len(out))
	if err != nil {
		return nil, err
	}
	for _, c := range cinemas {
		if len(out) >= limit {
			return out, nil
		}
		out = append(out, cinemaSuggestion(c))
	}

	cities, err := repo.SuggestCities(ctx, s.db, q, limit-len(out))
	if err != nil {
		return nil, err
	}
	for _, c := range cities {
		if len(out) >= limit {
			return out, nil
		}
		out = append(out, citySuggestion(c))
	}
	return out, nil
}

func (s *SuggestService) suggestFolded(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	needle := foldString(q)
	bound := s.cfg.SuggestScanCandidates
	out := make([]Suggestion, 0, limit)

	movies, err := repo.ScanMovies(ctx, s.db, bound)
	if err != nil {
		return nil, err
	}
	for _, m := range movies {
		if len(out) >= limit {
			return out, nil
		}
		if strings.Contains(foldString(m.Title), needle) ||
			(m.OriginalTitle != nil && strings.Contains(foldString(*m.OriginalTitle), needle)) {
			out = append(out, movieSuggestion(m))
		}
	}

	cinemas, err := repo.ScanCinemas(ctx, s.db, bound)
	if err != nil {
		return nil, err
	}
	for _, c := range cinemas {
		if len(out) >= limit {
			return out, nil
		}
		if strings.Contains(foldString(c.Name), needle) {
			out = append(out, cinemaSuggestion(c))
		}
	}

	cities, err := repo.ScanCities(ctx, s.db, bound)
	if err != nil {
		return nil, err
	}
	for _, c := range cities {
		if len(out) >= limit {
			return out, nil
		}
		if strings.Contains(foldString(c.Name), needle) || strings.HasPrefix(c.PostalCode, q) {
			out = append(out, citySuggestion(c))
		}
	}
	return out, nil
}

func movieSuggestion(m domain.Movie) Suggestion {
	return Suggestion{Kind: "movie", ID: m.ExternalID, Slug: m.Slug, Label: m.Title}
}

func cinemaSuggestion(c domain.Cinema) Suggestion {
	return Suggestion{
		Kind:      "cinema",
		ID:        c.ExternalID,
		Slug:      c.Slug,
		Label:     c.Name,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
	}
}

func citySuggestion(c domain.City) Suggestion {
	label := c.Name
	if c.PostalCode != "" {
		label = c.Name + " (" + c.PostalCode + ")"
	}
	return Suggestion{
		Kind:      "city",
		Label:     label,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
	}
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldString lower-cases s and strips combining marks, so "Amélie"
// matches "amelie".
func foldString(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
