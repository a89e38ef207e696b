// Package ingest implements the reconciliation pipeline that turns the
// provider's loosely-keyed listing payloads into canonical movie, cinema,
// and showtime records: ordered-fallback field extraction, scalar
// normalization, the title-keyed merge of the two listing sources, and the
// transactional upsert orchestration.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

// Raw is one loosely-typed record as decoded from the provider's JSON.
type Raw = map[string]any

// Candidate key lists for identifier resolution. The provider's payloads
// are inconsistent about key naming, so each entity probes an ordered list
// and the first present, non-empty value wins.
var (
	movieIDKeys  = []string{"id_allocine", "code", "id", "idAllocine", "movieId", "internalId", "ID"}
	cinemaIDKeys = []string{"id_allocine", "id", "code", "cinemaId"}
)

// firstValue probes keys in order and returns the first value that is
// present and non-empty (nil, "", and empty slices count as absent).
func firstValue(m Raw, keys ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
		case []any:
			if len(t) == 0 {
				continue
			}
		case []string:
			if len(t) == 0 {
				continue
			}
		}
		return v, true
	}
	return nil, false
}

// FirstString probes keys in order and returns the first present value
// coerced to a trimmed string. Numeric values are formatted without an
// exponent so JSON-decoded identifiers like 299534 survive the float64
// round-trip intact.
func FirstString(m Raw, keys ...string) string {
	v, ok := firstValue(m, keys...)
	if !ok {
		return ""
	}
	return coerceString(v)
}

// FirstBool probes keys in order and returns the first value coercible to
// a boolean. Strings accept the provider's usual truthy spellings.
func FirstBool(m Raw, keys ...string) (bool, bool) {
	v, ok := firstValue(m, keys...)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "oui", "premiere":
			return true, true
		default:
			return false, true
		}
	}
	return false, false
}

// MovieExternalID resolves the stable provider identifier of a movie
// payload, probing the explicit identifier field first and then the known
// aliases. It returns "" when no candidate yields a value; the caller must
// treat that as "skip this record", not as an error.
func MovieExternalID(m Raw) string {
	return FirstString(m, movieIDKeys...)
}

// CinemaExternalID resolves the stable provider identifier of a cinema
// payload. Same no-identifier contract as MovieExternalID.
func CinemaExternalID(m Raw) string {
	return FirstString(m, cinemaIDKeys...)
}

// coerceString renders a raw value as a trimmed string.
func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
