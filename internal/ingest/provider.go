package ingest

import (
	"context"
	"time"
)

// Provider fetches raw provider payloads. Records come back as loose maps
// because upstream responses are heterogeneous; field extraction and
// normalization stay in this package. The production implementation lives
// in the scraper package; runs and tests can substitute a stub.
type Provider interface {
	// FetchCinemas returns the provider's cinema directory.
	FetchCinemas(ctx context.Context) ([]Raw, error)
	// FetchListing returns movie metadata records playing at a cinema on a day.
	FetchListing(ctx context.Context, cinemaID string, date time.Time) ([]Raw, error)
	// FetchShowtimes returns per-screening records for a cinema on a day.
	FetchShowtimes(ctx context.Context, cinemaID string, date time.Time) ([]Raw, error)
}
