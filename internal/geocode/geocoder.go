// Package geocode resolves cinema street addresses to coordinates through
// a Nominatim-compatible endpoint. Lookups degrade through a cascade of
// progressively coarser queries, and every resolved location records which
// rung of the cascade produced it.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/cinemap/go-showtimes-backend/internal/config"
	"github.com/cinemap/go-showtimes-backend/internal/domain"
)

var (
	postalRE = regexp.MustCompile(`\b(\d{5})\b`)
	parenRE  = regexp.MustCompile(`\([^)]*\)`)
	spaceRE  = regexp.MustCompile(`\s+`)
)

// Location is the outcome of a lookup. Precision is one of the
// domain.Precision* constants; coordinates are only meaningful when it is
// not PrecisionFailed. City and PostalCode are extracted from the input
// address, not from the geocoder's answer, so they are populated even for
// failed lookups.
type Location struct {
	Latitude   float64
	Longitude  float64
	Precision  string
	City       string
	PostalCode string
}

// Geocoder resolves a free-form address.
type Geocoder interface {
	Locate(ctx context.Context, address string) Location
}

// NominatimClient implements Geocoder over the public Nominatim search
// API. A rate limiter enforces the service's minimum request spacing
// across all callers sharing the client.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	country    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatim builds a client from configuration.
func NewNominatim(cfg config.GeocodeConfig) *NominatimClient {
	return &NominatimClient{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		country:    cfg.Country,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinDelay), 1),
	}
}

// candidate is one rung of the fallback cascade.
type candidate struct {
	query     string
	precision string
}

// Locate resolves address through the cascade: the raw address, a cleaned
// variant, postal code plus city, then the bare city name. The first rung
// that yields a hit wins; when none does the result carries
// PrecisionFailed and zero coordinates. Lookup errors only skip a rung.
func (n *NominatimClient) Locate(ctx context.Context, address string) Location {
	city, postal := cityFromAddress(address)
	loc := Location{Precision: domain.PrecisionFailed, City: city, PostalCode: postal}

	for _, c := range n.cascade(address, city, postal) {
		lat, lon, ok, err := n.search(ctx, c.query)
		if err != nil {
			log.Debug().Err(err).Str("query", c.query).Msg("geocode: lookup error")
			continue
		}
		if !ok {
			continue
		}
		loc.Latitude = lat
		loc.Longitude = lon
		loc.Precision = c.precision
		return loc
	}
	return loc
}

// cascade builds the ordered rung list for one address, dropping rungs
// whose query would be empty or would duplicate the previous rung.
func (n *NominatimClient) cascade(address, city, postal string) []candidate {
	raw := strings.TrimSpace(address)
	cleaned := cleanAddress(raw)

	out := make([]candidate, 0, 4)
	if raw != "" {
		out = append(out, candidate{raw, domain.PrecisionRaw})
	}
	if cleaned != "" && cleaned != raw {
		out = append(out, candidate{cleaned, domain.PrecisionClean})
	}
	if postal != "" && city != "" {
		out = append(out, candidate{postal + " " + city, domain.PrecisionCityZip})
	}
	if city != "" {
		out = append(out, candidate{city, domain.PrecisionCityName})
	}
	return out
}

// search performs one rate-limited lookup and returns the top hit.
func (n *NominatimClient) search(ctx context.Context, query string) (lat, lon float64, ok bool, err error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return 0, 0, false, err
	}

	q := url.Values{
		"q":      {query + ", " + n.country},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, false, err
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, 0, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, 0, false, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return 0, 0, false, err
	}
	if len(hits) == 0 {
		return 0, 0, false, nil
	}

	lat, err = strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return 0, 0, false, err
	}
	lon, err = strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return 0, 0, false, err
	}
	return lat, lon, true, nil
}

// cleanAddress strips parentheticals and collapses whitespace, which is
// enough to fix the most common lookup killers in provider addresses.
func cleanAddress(address string) string {
	s := parenRE.ReplaceAllString(address, " ")
	s = spaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// cityFromAddress extracts the city name and postal code. The city is the
// text following the postal code up to the next comma; without a postal
// code it falls back to the last comma-separated segment.
func cityFromAddress(address string) (city, postal string) {
	m := postalRE.FindStringSubmatchIndex(address)
	if m != nil {
		postal = address[m[2]:m[3]]
		rest := address[m[3]:]
		if i := strings.IndexByte(rest, ','); i >= 0 {
			rest = rest[:i]
		}
		city = strings.Trim(rest, " ,.-")
		if city != "" {
			return city, postal
		}
	}

	parts := strings.Split(address, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	last = strings.Trim(postalRE.ReplaceAllString(last, ""), " ,.-")
	return last, postal
}
