package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

// FilterOptions lists the distinct values clients can filter on, drawn
// from what ingestion has actually stored.
type FilterOptions struct {
	Genres            []string `json:"genres"`
	Languages         []string `json:"languages"`
	DiffusionVersions []string `json:"diffusion_versions"`
}

// OptionsService serves the filter option catalogue.
type OptionsService struct {
	db     *gorm.DB
	tracer trace.Tracer
}

// NewOptionsService wires the service onto the shared database handle.
func NewOptionsService(db *gorm.DB) *OptionsService {
	return &OptionsService{db: db, tracer: otel.Tracer("services/options")}
}

// FilterOptions returns the current option catalogue, each list sorted
// alphabetically.
func (s *OptionsService) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	ctx, span := s.tracer.Start(ctx, "OptionsService.FilterOptions")
	defer span.End()

	genres, err := repo.ListGenreNames(ctx, s.db)
	if err != nil {
		return nil, err
	}
	languages, err := repo.ListLanguageNames(ctx, s.db)
	if err != nil {
		return nil, err
	}
	versions, err := repo.ListDiffusionVersions(ctx, s.db)
	if err != nil {
		return nil, err
	}

	return &FilterOptions{
		Genres:            genres,
		Languages:         languages,
		DiffusionVersions: versions,
	}, nil
}
