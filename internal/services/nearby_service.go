package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/domain"
	"github.com/cinemap/go-showtimes-backend/internal/ingest"
	"github.com/cinemap/go-showtimes-backend/internal/repo"
)

const earthRadiusKm = 6371.0

// ShowtimeView is one screening in a response.
type ShowtimeView struct {
	Date             string `json:"date"`
	Time             string `json:"time"`
	DiffusionVersion string `json:"diffusion_version"`
	Format           string `json:"format,omitempty"`
	ReservationURL   string `json:"reservation_url,omitempty"`
}

// CinemaView is one cinema under a movie, with its screenings and the
// exact distance from the search center.
type CinemaView struct {
	ExternalID string         `json:"id"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	DistanceKm float64        `json:"distance_km"`
	Showtimes  []ShowtimeView `json:"showtimes"`
}

// MovieView is the movie-rooted response node.
type MovieView struct {
	ExternalID    string       `json:"id"`
	Slug          string       `json:"slug"`
	Title         string       `json:"title"`
	OriginalTitle *string      `json:"original_title,omitempty"`
	ReleaseDate   *string      `json:"release_date,omitempty"`
	Genres        []string     `json:"genres,omitempty"`
	Languages     []string     `json:"languages,omitempty"`
	Duration      *int         `json:"duration,omitempty"`
	Synopsis      *string      `json:"synopsis,omitempty"`
	PosterURL     *string      `json:"poster_url,omitempty"`
	Director      *string      `json:"director,omitempty"`
	IsPremiere    bool         `json:"is_premiere"`
	MinDistanceKm float64      `json:"min_distance_km"`
	Cinemas       []CinemaView `json:"cinemas"`

	earliest string // "date time", for the time sort
}

// NearbyParams carries a nearby search request. An explicit coordinate
// pair takes precedence over City; when neither resolves, the search is
// rejected.
type NearbyParams struct {
	Latitude  *float64
	Longitude *float64
	City      string

	RadiusKm  float64    // 0 means the configured default
	Date      *time.Time // exact day; nil means today onward
	Subtitles []string
	Genres    []string
	Languages []string
	Duration  int    // max minutes, 0 = no cap
	Sort      string // relevance (default), distance, time, title, duration
}

// NearbyService answers geographic showtime queries.
type NearbyService struct {
	db     *gorm.DB
	cfg    config.QueryConfig
	now    func() time.Time
	tracer trace.Tracer
}

// NewNearbyService wires the service onto the shared database handle.
func NewNearbyService(db *gorm.DB, cfg config.QueryConfig) *NearbyService {
	return &NearbyService{
		db:     db,
		cfg:    cfg,
		now:    time.Now,
		tracer: otel.Tracer("services/nearby"),
	}
}

// MoviesNearby returns the movies playing within the radius of the
// resolved center, as a movie→cinema→showtime tree. Cinemas fall inside
// the radius by exact great-circle distance; a cinema left without
// screenings by the filters is dropped, and a movie left without cinemas
// disappears with it.
func (s *NearbyService) MoviesNearby(ctx context.Context, p NearbyParams) ([]MovieView, error) {
	ctx, span := s.tracer.Start(ctx, "NearbyService.MoviesNearby")
	defer span.End()

	lat, lon, err := s.resolveCenter(ctx, p)
	if err != nil {
		return nil, err
	}
	radius := p.RadiusKm
	if radius <= 0 {
		radius = s.cfg.DefaultRadiusKm
	}

	rows, err := repo.NearbyShowtimeRows(ctx, s.db, s.buildFilter(lat, lon, radius, p, ""))
	if err != nil {
		return nil, err
	}

	movies := s.fold(rows, lat, lon, radius, p)
	sortMovies(movies, p.Sort)
	return movies, nil
}

// MovieDetails returns one movie by provider identifier or slug. When a
// center resolves, nearby screenings within the detail radius are attached;
// otherwise the metadata comes back with an empty cinema list.
func (s *NearbyService) MovieDetails(ctx context.Context, slugOrID string, p NearbyParams) (*MovieView, error) {
	ctx, span := s.tracer.Start(ctx, "NearbyService.MovieDetails")
	defer span.End()

	movie, err := repo.GetMovieByExternalID(ctx, s.db, slugOrID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	view := movieMetadataView(movie)

	lat, lon, err := s.resolveCenter(ctx, p)
	if err != nil {
		if errors.Is(err, ErrCenterUnresolved) {
			return view, nil
		}
		return nil, err
	}
	radius := p.RadiusKm
	if radius <= 0 {
		radius = s.cfg.DetailRadiusKm
	}

	rows, err := repo.NearbyShowtimeRows(ctx, s.db, s.buildFilter(lat, lon, radius, p, movie.ExternalID))
	if err != nil {
		return nil, err
	}
	if folded := s.fold(rows, lat, lon, radius, p); len(folded) > 0 {
		folded[0].earliest = ""
		return &folded[0], nil
	}
	return view, nil
}

// resolveCenter applies the precedence rule: explicit coordinates, then a
// city with known coordinates, then rejection.
func (s *NearbyService) resolveCenter(ctx context.Context, p NearbyParams) (float64, float64, error) {
	if p.Latitude != nil || p.Longitude != nil {
		if p.Latitude == nil || p.Longitude == nil {
			return 0, 0, ErrInvalidCoordinates
		}
		lat, lon := *p.Latitude, *p.Longitude
		if !validCoordinates(lat, lon) {
			return 0, 0, ErrInvalidCoordinates
		}
		return lat, lon, nil
	}

	if strings.TrimSpace(p.City) != "" {
		city, err := repo.FindCityCenter(ctx, s.db, p.City)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return 0, 0, ErrCenterUnresolved
			}
			return 0, 0, err
		}
		return *city.Latitude, *city.Longitude, nil
	}

	return 0, 0, ErrCenterUnresolved
}

// buildFilter translates request parameters plus the center's bounding box
// into the repository filter.
func (s *NearbyService) buildFilter(lat, lon, radius float64, p NearbyParams, movieExternalID string) repo.NearbyFilter {
	minLat, maxLat, minLon, maxLon := boundingBox(lat, lon, radius)

	f := repo.NearbyFilter{
		MinLat: minLat, MaxLat: maxLat,
		MinLon: minLon, MaxLon: maxLon,
		Genres:          p.Genres,
		Languages:       p.Languages,
		MaxDuration:     p.Duration,
		MovieExternalID: movieExternalID,
	}

	if p.Date != nil {
		d := time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), 0, 0, 0, 0, time.UTC)
		f.DateExact = &d
	} else {
		now := s.now().UTC()
		d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		f.DateFrom = &d
	}

	for _, sub := range p.Subtitles {
		if c := ingest.CanonicalDiffusion(sub); c != "" {
			f.Subtitles = append(f.Subtitles, c)
		}
	}
	return f
}

// fold groups the flat rows into the movie→cinema→showtime tree,
// preserving the store-native order, applying the exact radius check and
// the tag-set post-filters, and computing per-movie aggregates.
func (s *NearbyService) fold(rows []repo.ShowtimeRow, lat, lon, radius float64, p NearbyParams) []MovieView {
	wantGenres := lowerSet(p.Genres)
	wantLanguages := lowerSet(p.Languages)

	movies := make([]MovieView, 0)
	movieIdx := make(map[uint]int)
	cinemaIdx := make(map[uint]map[uint]int) // movie ID → cinema ID → index

	for i := range rows {
		r := &rows[i]

		dist := haversineKm(lat, lon, r.Latitude, r.Longitude)
		if dist > radius {
			continue
		}
		genres := splitTags(r.Genres)
		if !tagsIntersect(genres, wantGenres) {
			continue
		}
		languages := splitTags(r.Languages)
		if !tagsIntersect(languages, wantLanguages) {
			continue
		}

		mi, ok := movieIdx[r.MovieID]
		if !ok {
			mi = len(movies)
			movieIdx[r.MovieID] = mi
			cinemaIdx[r.MovieID] = make(map[uint]int)
			movies = append(movies, MovieView{
				ExternalID:    r.MovieExternalID,
				Slug:          r.MovieSlug,
				Title:         r.Title,
				OriginalTitle: r.OriginalTitle,
				ReleaseDate:   formatDatePtr(r.ReleaseDate),
				Genres:        genres,
				Languages:     languages,
				Duration:      r.Duration,
				Synopsis:      r.Synopsis,
				PosterURL:     r.PosterURL,
				Director:      r.Director,
				IsPremiere:    r.IsPremiere,
				MinDistanceKm: roundKm(dist),
			})
		}
		movie := &movies[mi]
		if d := roundKm(dist); d < movie.MinDistanceKm {
			movie.MinDistanceKm = d
		}

		ci, ok := cinemaIdx[r.MovieID][r.CinemaID]
		if !ok {
			ci = len(movie.Cinemas)
			cinemaIdx[r.MovieID][r.CinemaID] = ci
			movie.Cinemas = append(movie.Cinemas, CinemaView{
				ExternalID: r.CinemaExternalID,
				Slug:       r.CinemaSlug,
				Name:       r.CinemaName,
				Address:    r.Address,
				Latitude:   r.Latitude,
				Longitude:  r.Longitude,
				DistanceKm: roundKm(dist),
			})
		}

		date := r.StartDate.Format("2006-01-02")
		movie.Cinemas[ci].Showtimes = append(movie.Cinemas[ci].Showtimes, ShowtimeView{
			Date:             date,
			Time:             r.StartTime,
			DiffusionVersion: r.DiffusionVersion,
			Format:           r.Format,
			ReservationURL:   strOrEmpty(r.ReservationURL),
		})
		if stamp := date + " " + r.StartTime; movie.earliest == "" || stamp < movie.earliest {
			movie.earliest = stamp
		}
	}

	// Drop cinemas left without screenings and movies left without cinemas.
	out := movies[:0]
	for i := range movies {
		kept := movies[i].Cinemas[:0]
		for _, c := range movies[i].Cinemas {
			if len(c.Showtimes) > 0 {
				kept = append(kept, c)
			}
		}
		movies[i].Cinemas = kept
		if len(kept) > 0 {
			out = append(out, movies[i])
		}
	}
	return out
}

// sortMovies reorders the tree roots. The zero value and "relevance" keep
// the store-native order; unknown modes do too. Every sort is stable, and
// movies missing the sort key go last.
func sortMovies(movies []MovieView, mode string) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "distance":
		sort.SliceStable(movies, func(i, j int) bool {
			return movies[i].MinDistanceKm < movies[j].MinDistanceKm
		})
	case "time":
		sort.SliceStable(movies, func(i, j int) bool {
			if (movies[i].earliest == "") != (movies[j].earliest == "") {
				return movies[i].earliest != ""
			}
			return movies[i].earliest < movies[j].earliest
		})
	case "title":
		sort.SliceStable(movies, func(i, j int) bool {
			return strings.ToLower(movies[i].Title) < strings.ToLower(movies[j].Title)
		})
	case "duration":
		sort.SliceStable(movies, func(i, j int) bool {
			di, dj := movies[i].Duration, movies[j].Duration
			if (di == nil) != (dj == nil) {
				return di != nil
			}
			if di == nil {
				return false
			}
			return *di < *dj
		})
	}
}

// movieMetadataView renders a stored movie without screening context.
func movieMetadataView(m *domain.Movie) *MovieView {
	return &MovieView{
		ExternalID:    m.ExternalID,
		Slug:          m.Slug,
		Title:         m.Title,
		OriginalTitle: m.OriginalTitle,
		ReleaseDate:   formatDatePtr(m.ReleaseDate),
		Genres:        splitTags(m.Genres),
		Languages:     splitTags(m.Languages),
		Duration:      m.Duration,
		Synopsis:      m.Synopsis,
		PosterURL:     m.PosterURL,
		Director:      m.Director,
		IsPremiere:    m.IsPremiere,
		Cinemas:       []CinemaView{},
	}
}

// validCoordinates rejects NaN, infinities, and out-of-range values.
func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// boundingBox computes the lat/lon window that contains the radius circle.
// Near the poles the cosine vanishes and the longitude delta blows up; any
// window reaching half the globe or more opens to the full range instead.
func boundingBox(lat, lon, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := radiusKm / 111.0
	minLat, maxLat = lat-dLat, lat+dLat

	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-12 {
		return minLat, maxLat, -180, 180
	}
	dLon := radiusKm / (111.0 * cosLat)
	if dLon >= 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, lon - dLon, lon + dLon
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	phi1, phi2 := lat1*degToRad, lat2*degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func roundKm(d float64) float64 {
	return math.Round(d*100) / 100
}

// splitTags splits a comma-joined text column into its tag list.
func splitTags(s *string) []string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	parts := strings.Split(*s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// tagsIntersect reports whether tags shares at least one element with the
// lower-cased want set. An empty want set matches everything.
func tagsIntersect(tags []string, want map[string]struct{}) bool {
	if len(want) == 0 {
		return true
	}
	for _, t := range tags {
		if _, ok := want[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
