// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the movie upsert and the
// genre/language reference-table helpers.
//
// Error semantics:
//   - Missing records surface as gorm.ErrRecordNotFound (aliased ErrNotFound).
//   - Uniqueness races inside GetOrCreate* are absorbed by a re-read and
//     never propagate.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinemap/go-showtimes-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// movieCoalesceAssignments builds the conflict-update set implementing the
// coalescing policy: an incoming NULL never erases a stored value, an
// incoming non-NULL always wins. IsPremiere and LastUpdate are the two
// exceptions that unconditionally take the incoming value. Both Postgres
// and SQLite expose the proposed row as "excluded" and the existing row as
// the unqualified column, so the expressions are portable across stores.
func movieCoalesceAssignments() clause.Set {
	return clause.Assignments(map[string]any{
		"slug":                gorm.Expr("excluded.slug"),
		"title":               gorm.Expr("excluded.title"),
		"original_title":      gorm.Expr("COALESCE(excluded.original_title, original_title)"),
		"release_date":        gorm.Expr("COALESCE(excluded.release_date, release_date)"),
		"genres":              gorm.Expr("COALESCE(excluded.genres, genres)"),
		"languages":           gorm.Expr("COALESCE(excluded.languages, languages)"),
		"duration":            gorm.Expr("COALESCE(excluded.duration, duration)"),
		"synopsis":            gorm.Expr("COALESCE(excluded.synopsis, synopsis)"),
		"poster_url":          gorm.Expr("COALESCE(excluded.poster_url, poster_url)"),
		"director":            gorm.Expr("COALESCE(excluded.director, director)"),
		"primary_genre_id":    gorm.Expr("COALESCE(excluded.primary_genre_id, primary_genre_id)"),
		"primary_language_id": gorm.Expr("COALESCE(excluded.primary_language_id, primary_language_id)"),
		"is_premiere":         gorm.Expr("excluded.is_premiere"),
		"last_update":         gorm.Expr("excluded.last_update"),
	})
}

// UpsertMovie inserts m or, on conflict on the external identifier,
// applies the coalescing field merge. Repeated ingestion of identical data
// is a no-op apart from the timestamp. The persisted row (with surrogate
// ID) is loaded back into m.
func UpsertMovie(ctx context.Context, db *gorm.DB, m *domain.Movie) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: movieCoalesceAssignments(),
		}).
		Omit("GenreTags", "LanguageTags").
		Create(m).Error
	if err != nil {
		return err
	}
	// Re-read so callers observe the merged row, not just the insert values.
	return db.WithContext(ctx).Where("external_id = ?", m.ExternalID).First(m).Error
}

// GetMovieByExternalID fetches a movie by its provider identifier, or by
// slug as a fallback so pretty URLs keep working. Returns ErrNotFound when
// neither matches.
func GetMovieByExternalID(ctx context.Context, db *gorm.DB, id string) (*domain.Movie, error) {
	var m domain.Movie
	err := db.WithContext(ctx).Where("external_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.WithContext(ctx).Where("slug = ?", id).First(&m).Error
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetOrCreateGenre returns the surrogate key for a genre name, inserting
// the row on first encounter. Two workers discovering the same new tag
// concurrently race on the unique name index; the loser's insert fails and
// the re-read below returns the winner's row instead of failing the batch.
func GetOrCreateGenre(ctx context.Context, db *gorm.DB, name string) (uint, error) {
	var g domain.Genre
	err := db.WithContext(ctx).Where("name = ?", name).First(&g).Error
	if err == nil {
		return g.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	g = domain.Genre{Name: name}
	if cerr := db.WithContext(ctx).Create(&g).Error; cerr != nil {
		if rerr := db.WithContext(ctx).Where("name = ?", name).First(&g).Error; rerr != nil {
			return 0, cerr
		}
	}
	return g.ID, nil
}

// GetOrCreateLanguage is GetOrCreateGenre for the languages table.
func GetOrCreateLanguage(ctx context.Context, db *gorm.DB, name string) (uint, error) {
	var l domain.Language
	err := db.WithContext(ctx).Where("name = ?", name).First(&l).Error
	if err == nil {
		return l.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	l = domain.Language{Name: name}
	if cerr := db.WithContext(ctx).Create(&l).Error; cerr != nil {
		if rerr := db.WithContext(ctx).Where("name = ?", name).First(&l).Error; rerr != nil {
			return 0, cerr
		}
	}
	return l.ID, nil
}

// ReplaceMovieGenres rewires the movie_genres association to exactly the
// given genre IDs.
func ReplaceMovieGenres(ctx context.Context, db *gorm.DB, movie *domain.Movie, genreIDs []uint) error {
	genres := make([]domain.Genre, 0, len(genreIDs))
	for _, id := range genreIDs {
		genres = append(genres, domain.Genre{ID: id})
	}
	return db.WithContext(ctx).Model(movie).Association("GenreTags").Replace(genres)
}

// ReplaceMovieLanguages rewires the movie_languages association to exactly
// the given language IDs.
func ReplaceMovieLanguages(ctx context.Context, db *gorm.DB, movie *domain.Movie, languageIDs []uint) error {
	languages := make([]domain.Language, 0, len(languageIDs))
	for _, id := range languageIDs {
		languages = append(languages, domain.Language{ID: id})
	}
	return db.WithContext(ctx).Model(movie).Association("LanguageTags").Replace(languages)
}

// ListGenreNames returns every known genre name, alphabetically.
func ListGenreNames(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).Model(&domain.Genre{}).Order("name ASC").Pluck("name", &names).Error
	return names, err
}

// ListLanguageNames returns every known language name, alphabetically.
func ListLanguageNames(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).Model(&domain.Language{}).Order("name ASC").Pluck("name", &names).Error
	return names, err
}

// ListDiffusionVersions returns the distinct diffusion/subtitle modes seen
// across stored showtimes, alphabetically, excluding the empty tag.
func ListDiffusionVersions(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.Showtime{}).
		Distinct("diffusion_version").
		Where("diffusion_version <> ''").
		Order("diffusion_version ASC").
		Pluck("diffusion_version", &out).Error
	return out, err
}
