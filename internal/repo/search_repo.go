// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read-side queries behind the
// nearby search and the suggestion engine: the flat showtime→cinema→movie
// join that the query engine folds into a tree, and the accent-folded /
// scan suggestion lookups.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/domain"
)

// ShowtimeRow is one flat row of the showtimes⋈cinemas⋈movies join. The
// query engine groups these by movie then cinema; the first occurrence of
// each establishes the scalar fields.
type ShowtimeRow struct {
	MovieID         uint
	MovieExternalID string
	MovieSlug       string
	Title           string
	OriginalTitle   *string
	ReleaseDate     *time.Time
	Genres          *string
	Languages       *string
	Duration        *int
	Synopsis        *string
	PosterURL       *string
	Director        *string
	IsPremiere      bool

	CinemaID         uint
	CinemaExternalID string
	CinemaSlug       string
	CinemaName       string
	Address          string
	Latitude         float64
	Longitude        float64

	StartDate        time.Time
	StartTime        string
	DiffusionVersion string
	Format           string
	ReservationURL   *string
}

// NearbyFilter restricts the flat join. The bounding box is a coarse
// pure-arithmetic prefilter that both stores evaluate on the lat/lon
// columns; exact haversine inclusion happens while folding rows. Genre and
// language terms are coarse substring prefilters over the comma-joined
// text columns; exact tag-set intersection also happens post-query.
type NearbyFilter struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64

	DateExact *time.Time // exact-day match when set
	DateFrom  *time.Time // inclusive lower bound otherwise

	Subtitles   []string // canonical diffusion modes; empty = all
	MaxDuration int      // minutes; 0 = no cap
	Genres      []string
	Languages   []string

	MovieExternalID string // scope to one movie (details view); empty = all
}

// selectNearbyColumns is the projection shared by every nearby query.
const selectNearbyColumns = `
movies.id AS movie_id, movies.external_id AS movie_external_id, movies.slug AS movie_slug,
movies.title, movies.original_title, movies.release_date, movies.genres, movies.languages,
movies.duration, movies.synopsis, movies.poster_url, movies.director, movies.is_premiere,
cinemas.id AS cinema_id, cinemas.external_id AS cinema_external_id, cinemas.slug AS cinema_slug,
cinemas.name AS cinema_name,
cinemas.address, cinemas.latitude, cinemas.longitude,
showtimes.start_date, showtimes.start_time, showtimes.diffusion_version, showtimes.format,
showtimes.reservation_url`

// NearbyShowtimeRows runs the flat join restricted by f, ordered by the
// store-native "relevance" order: title, cinema name, date, time. Cinemas
// without resolved coordinates never match the box predicate and are
// excluded by construction.
func NearbyShowtimeRows(ctx context.Context, db *gorm.DB, f NearbyFilter) ([]ShowtimeRow, error) {
	q := db.WithContext(ctx).
		Table("showtimes").
		Select(selectNearbyColumns).
		Joins("JOIN cinemas ON cinemas.id = showtimes.cinema_id").
		Joins("JOIN movies ON movies.id = showtimes.movie_id").
		Where("cinemas.latitude IS NOT NULL AND cinemas.longitude IS NOT NULL").
		Where("cinemas.latitude BETWEEN ? AND ?", f.MinLat, f.MaxLat).
		Where("cinemas.longitude BETWEEN ? AND ?", f.MinLon, f.MaxLon)

	switch {
	case f.DateExact != nil:
		q = q.Where("showtimes.start_date = ?", *f.DateExact)
	case f.DateFrom != nil:
		q = q.Where("showtimes.start_date >= ?", *f.DateFrom)
	}

	if len(f.Subtitles) > 0 {
		q = q.Where("showtimes.diffusion_version IN ?", f.Subtitles)
	}
	if f.MaxDuration > 0 {
		q = q.Where("movies.duration IS NOT NULL AND movies.duration <= ?", f.MaxDuration)
	}
	if cond, args := likeAnyCondition("movies.genres", f.Genres); cond != "" {
		q = q.Where(cond, args...)
	}
	if cond, args := likeAnyCondition("movies.languages", f.Languages); cond != "" {
		q = q.Where(cond, args...)
	}
	if f.MovieExternalID != "" {
		q = q.Where("movies.external_id = ?", f.MovieExternalID)
	}

	var rows []ShowtimeRow
	err := q.
		Order("movies.title ASC").
		Order("cinemas.name ASC").
		Order("showtimes.start_date ASC").
		Order("showtimes.start_time ASC").
		Scan(&rows).Error
	return rows, err
}

// likeAnyCondition builds a case-insensitive "column contains any term"
// predicate over a comma-joined text column. Returns "" when no usable
// terms remain.
func likeAnyCondition(column string, terms []string) (string, []any) {
	parts := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, "LOWER("+column+") LIKE ?")
		args = append(args, "%"+strings.ToLower(t)+"%")
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// --- Suggestion queries ------------------------------------------------
//
// The primary path pushes accent folding into the store with unaccent();
// it is only available on Postgres with the extension installed. When that
// query errors, the service falls back to the Scan* variants below and
// folds client-side.

// SuggestMovies matches titles accent- and case-insensitively in SQL.
func SuggestMovies(ctx context.Context, db *gorm.DB, q string, limit int) ([]domain.Movie, error) {
	var out []domain.Movie
	pattern := "%" + strings.ToLower(q) + "%"
	err := db.WithContext(ctx).
		Where("unaccent(LOWER(title)) LIKE unaccent(?) OR unaccent(LOWER(COALESCE(original_title, ''))) LIKE unaccent(?)",
			pattern, pattern).
		Order("title ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SuggestCinemas matches cinema names accent- and case-insensitively in SQL.
func SuggestCinemas(ctx context.Context, db *gorm.DB, q string, limit int) ([]domain.Cinema, error) {
	var out []domain.Cinema
	pattern := "%" + strings.ToLower(q) + "%"
	err := db.WithContext(ctx).
		Where("unaccent(LOWER(name)) LIKE unaccent(?)", pattern).
		Order("name ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SuggestCities matches city names accent-insensitively, or postal codes by
// prefix when the query looks numeric.
func SuggestCities(ctx context.Context, db *gorm.DB, q string, limit int) ([]domain.City, error) {
	var out []domain.City
	pattern := "%" + strings.ToLower(q) + "%"
	err := db.WithContext(ctx).
		Where("unaccent(LOWER(name)) LIKE unaccent(?) OR postal_code LIKE ?", pattern, q+"%").
		Order("name ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ScanMovies loads up to bound movie rows, title-ordered, for client-side
// accent folding when the store lacks unaccent().
func ScanMovies(ctx context.Context, db *gorm.DB, bound int) ([]domain.Movie, error) {
	var out []domain.Movie
	err := db.WithContext(ctx).Order("title ASC").Limit(bound).Find(&out).Error
	return out, err
}

// ScanCinemas loads up to bound cinema rows, name-ordered.
func ScanCinemas(ctx context.Context, db *gorm.DB, bound int) ([]domain.Cinema, error) {
	var out []domain.Cinema
	err := db.WithContext(ctx).Order("name ASC").Limit(bound).Find(&out).Error
	return out, err
}

// ScanCities loads up to bound city rows, name-ordered.
func ScanCities(ctx context.Context, db *gorm.DB, bound int) ([]domain.City, error) {
	var out []domain.City
	err := db.WithContext(ctx).Order("name ASC").Limit(bound).Find(&out).Error
	return out, err
}
