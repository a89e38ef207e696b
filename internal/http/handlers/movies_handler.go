package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cinemap/go-showtimes-backend/internal/services"
)

// Handler bundles the query-side services behind the public endpoints.
type Handler struct {
	nearby  *services.NearbyService
	suggest *services.SuggestService
	options *services.OptionsService
}

// New constructs a Handler with its service dependencies.
func New(nearby *services.NearbyService, suggest *services.SuggestService, options *services.OptionsService) *Handler {
	return &Handler{nearby: nearby, suggest: suggest, options: options}
}

// nearbyRequest is the POST body form of the nearby search. The GET form
// carries the same fields as query parameters.
type nearbyRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	RadiusKm  float64  `json:"radius_km"`
	Date      string   `json:"date"`
	Subtitles []string `json:"subtitles"`
	Genres    []string `json:"genres"`
	Languages []string `json:"languages"`
	Duration  int      `json:"duration"`
	Sort      string   `json:"sort"`
}

// MoviesNearby handles GET /movies/nearby.
func (h *Handler) MoviesNearby(c *gin.Context) {
	p, ok2 := parseNearbyQuery(c)
	if !ok2 {
		return
	}
	h.runNearby(c, p)
}

// MoviesNearbyPost handles POST /movies/nearby, for clients whose filter
// sets outgrow a query string.
func (h *Handler) MoviesNearbyPost(c *gin.Context) {
	var req nearbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	p := services.NearbyParams{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		City:      req.City,
		RadiusKm:  req.RadiusKm,
		Subtitles: req.Subtitles,
		Genres:    req.Genres,
		Languages: req.Languages,
		Duration:  req.Duration,
		Sort:      req.Sort,
	}
	// A malformed date drops the filter rather than failing the request,
	// falling back to "today onward".
	if d, err := time.Parse("2006-01-02", req.Date); err == nil {
		p.Date = &d
	}
	h.runNearby(c, p)
}

func (h *Handler) runNearby(c *gin.Context, p services.NearbyParams) {
	movies, err := h.nearby.MoviesNearby(c.Request.Context(), p)
	if err != nil {
		failNearby(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"count": len(movies), "movies": movies})
}

// MovieDetails handles GET /movies/:id, where :id is the provider
// identifier or the slug. Optional center parameters attach nearby
// screenings.
func (h *Handler) MovieDetails(c *gin.Context) {
	p, ok2 := parseNearbyQuery(c)
	if !ok2 {
		return
	}

	view, err := h.nearby.MovieDetails(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "movie not found")
			return
		}
		failNearby(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// FilterOptions handles GET /filters/options.
func (h *Handler) FilterOptions(c *gin.Context) {
	opts, err := h.options.FilterOptions(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load filter options")
		return
	}
	ok(c, http.StatusOK, opts)
}

func failNearby(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCoordinates):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid coordinates")
	case errors.Is(err, services.ErrCenterUnresolved):
		fail(c, http.StatusBadRequest, ErrCodeCenterUnresolved, "provide latitude/longitude or a known city")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, "search failed")
	}
}

// parseNearbyQuery reads the GET form of the search parameters. It writes
// the error response itself and reports success through the bool.
func parseNearbyQuery(c *gin.Context) (services.NearbyParams, bool) {
	var p services.NearbyParams

	var bad string
	p.Latitude, bad = floatParam(c, "lat", bad)
	p.Longitude, bad = floatParam(c, "lon", bad)
	if bad != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid "+bad)
		return p, false
	}

	p.City = c.Query("city")
	p.Sort = c.Query("sort")
	p.Subtitles = csvParam(c, "subtitles")
	p.Genres = csvParam(c, "genres")
	p.Languages = csvParam(c, "languages")

	// Non-positive radius falls back to the configured default downstream,
	// so only a non-numeric value is rejected here.
	if s := c.Query("radius_km"); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid radius_km")
			return p, false
		}
		p.RadiusKm = r
	}
	if s := c.Query("duration"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d < 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid duration")
			return p, false
		}
		p.Duration = d
	}
	// A malformed date drops the filter ("today onward") instead of failing.
	if d, err := time.Parse("2006-01-02", c.Query("date")); err == nil {
		p.Date = &d
	}

	return p, true
}

// floatParam parses an optional float query parameter; on failure it
// passes the offending name through so the caller can report it.
func floatParam(c *gin.Context, name, bad string) (*float64, string) {
	s := c.Query(name)
	if s == "" {
		return nil, bad
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if bad == "" {
			bad = name
		}
		return nil, bad
	}
	return &f, bad
}

// csvParam gathers a multi-value parameter given either repeated or as a
// comma-separated list.
func csvParam(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
