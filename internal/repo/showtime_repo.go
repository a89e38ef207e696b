// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the showtime upsert.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinemap/go-showtimes-backend/internal/domain"
)

// UpsertShowtime inserts s on its composite fact identity
// (cinema, movie, start date, start time, diffusion version). On conflict
// only the non-key attributes are refreshed, so re-ingesting the same
// screening never duplicates a row. Returns whether a row was written.
func UpsertShowtime(ctx context.Context, db *gorm.DB, s *domain.Showtime) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "cinema_id"},
				{Name: "movie_id"},
				{Name: "start_date"},
				{Name: "start_time"},
				{Name: "diffusion_version"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"format", "reservation_url", "last_update",
			}),
		}).
		Omit("Cinema", "Movie").
		Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountShowtimes reports the number of stored showtime rows; used by
// ingestion tests and the scrape endpoint's summary.
func CountShowtimes(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Showtime{}).Count(&total).Error
	return total, err
}
