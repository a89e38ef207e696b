package ingest

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/domain"
	"github.com/cinemap/go-showtimes-backend/internal/geocode"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

// CinemaSyncReport summarizes one cinema directory sync.
type CinemaSyncReport struct {
	Total    int // directory records fetched
	Upserted int
	Geocoded int // upserted records with resolved coordinates
	Failed   int // records skipped (no identifier) or errored
}

// SyncCinemas refreshes the cinema directory: fetches the provider's
// list, geocodes each address through the fallback cascade, and fully
// overwrites each stored record. Cities discovered along the way are
// recorded for suggestion lookups. Record failures are independent.
func SyncCinemas(ctx context.Context, db *gorm.DB, provider Provider, geo geocode.Geocoder) (CinemaSyncReport, error) {
	var report CinemaSyncReport

	records, err := provider.FetchCinemas(ctx)
	if err != nil {
		return report, err
	}
	report.Total = len(records)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		externalID := CinemaExternalID(rec)
		name := FirstString(rec, "name")
		if externalID == "" || name == "" {
			report.Failed++
			continue
		}
		address := FirstString(rec, "address", "fullAddress", "full_address")

		loc := geo.Locate(ctx, address)
		cinema := &domain.Cinema{
			ExternalID:       externalID,
			Slug:             slug.Make(name),
			Name:             name,
			Address:          address,
			GeocodePrecision: loc.Precision,
		}
		if loc.Precision != domain.PrecisionFailed {
			lat, lon := loc.Latitude, loc.Longitude
			cinema.Latitude = &lat
			cinema.Longitude = &lon
		}

		if err := repo.UpsertCinema(ctx, db, cinema); err != nil {
			report.Failed++
			log.Warn().Err(err).Str("cinema_external_id", externalID).Msg("ingest: cinema upsert failed")
			continue
		}
		report.Upserted++
		if loc.Precision != domain.PrecisionFailed {
			report.Geocoded++
		}

		recordCity(ctx, db, loc)
	}

	log.Info().
		Int("total", report.Total).
		Int("upserted", report.Upserted).
		Int("geocoded", report.Geocoded).
		Int("failed", report.Failed).
		Msg("ingest: cinema sync finished")
	return report, nil
}

// recordCity stores the city extracted from a cinema address. City-level
// cascade rungs contribute their coordinates; street-level rungs do not,
// since those point at the cinema rather than the city.
func recordCity(ctx context.Context, db *gorm.DB, loc geocode.Location) {
	name := strings.TrimSpace(loc.City)
	if name == "" {
		return
	}

	city := &domain.City{Name: name, PostalCode: loc.PostalCode}
	if loc.Precision == domain.PrecisionCityZip || loc.Precision == domain.PrecisionCityName {
		lat, lon := loc.Latitude, loc.Longitude
		city.Latitude = &lat
		city.Longitude = &lon
	}
	if err := repo.GetOrCreateCity(ctx, db, city); err != nil {
		log.Debug().Err(err).Str("city", name).Msg("ingest: city record failed")
	}
}
