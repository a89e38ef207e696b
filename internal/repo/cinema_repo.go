// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides cinema and city persistence.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinemap/go-showtimes-backend/internal/domain"
)

// UpsertCinema inserts c or fully overwrites the existing row on conflict
// on the external identifier. Unlike movies there is no coalescing: every
// sync re-derives the whole record from a single authoritative geocode
// attempt, so the incoming values win even when they are null.
func UpsertCinema(ctx context.Context, db *gorm.DB, c *domain.Cinema) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"slug", "name", "address", "latitude", "longitude", "geocode_precision",
			}),
		}).
		Create(c).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Where("external_id = ?", c.ExternalID).First(c).Error
}

// GetCinemaByExternalID fetches a cinema by provider identifier.
// A cinema with unresolved coordinates is still valid here; only geo
// queries exclude it.
func GetCinemaByExternalID(ctx context.Context, db *gorm.DB, id string) (*domain.Cinema, error) {
	var c domain.Cinema
	if err := db.WithContext(ctx).Where("external_id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCinemas returns every cinema, ordered by name. Ingestion runs use
// this to build the cinema×date task matrix.
func ListCinemas(ctx context.Context, db *gorm.DB) ([]domain.Cinema, error) {
	var out []domain.Cinema
	err := db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

// FindCityCenter returns the first city matching name (case-insensitive)
// that has resolved coordinates. Used to turn a city query parameter into
// a search center.
func FindCityCenter(ctx context.Context, db *gorm.DB, name string) (*domain.City, error) {
	var c domain.City
	err := db.WithContext(ctx).
		Where("LOWER(name) = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", strings.ToLower(strings.TrimSpace(name))).
		Order("name ASC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateCity upserts a city discovered while geocoding a cinema
// address, keyed by (name, postal code). Same conflict-retry discipline as
// the genre/language tables: a concurrent insert of the same city is
// absorbed by a re-read.
func GetOrCreateCity(ctx context.Context, db *gorm.DB, city *domain.City) error {
	var existing domain.City
	err := db.WithContext(ctx).
		Where("name = ? AND postal_code = ?", city.Name, city.PostalCode).
		First(&existing).Error
	if err == nil {
		*city = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if cerr := db.WithContext(ctx).Create(city).Error; cerr != nil {
		if rerr := db.WithContext(ctx).
			Where("name = ? AND postal_code = ?", city.Name, city.PostalCode).
			First(city).Error; rerr != nil {
			return cerr
		}
	}
	return nil
}
