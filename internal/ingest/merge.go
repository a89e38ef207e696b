package ingest

// ShowEntry is one screening extracted from a showtime listing record.
type ShowEntry struct {
	StartsAt         string // combined start timestamp, e.g. "2025-09-10T14:00:00"
	DiffusionVersion string
	Format           string
	ReservationURL   string
}

// MergedMovie is a metadata record enriched with the showtimes that the
// provider publishes under the same title, plus the resolved identifier
// and premiere flag.
type MergedMovie struct {
	ExternalID string
	Payload    Raw // the metadata listing record, for field normalization
	IsPremiere bool
	Shows      []ShowEntry
}

// showIndexEntry is what the showtime listing contributes per title.
type showIndexEntry struct {
	externalID string
	premiere   bool
	hasPrem    bool
	shows      []ShowEntry
}

// Merge combines the metadata listing and the showtime listing fetched for
// one cinema and date. The two sources share no reliable key except the
// title, so showtime records are indexed by title and each metadata record
// picks up the matching entry's screenings.
//
// Identifier resolution prefers the metadata record's own identifier, then
// the showtime entry's, then the metadata record's alternate keys. Records
// that still resolve no identifier are dropped — skipping one record never
// fails the batch. The premiere flag takes the first non-false value,
// metadata winning.
//
// Title matching is a heuristic: two distinct catalogue entries sharing an
// exact title collide, and the later showtime record wins the index slot.
// That ambiguity is accepted rather than papered over with guesswork.
func Merge(listing, showtimes []Raw) []MergedMovie {
	index := make(map[string]showIndexEntry, len(showtimes))
	for _, s := range showtimes {
		title := FirstString(s, "title")
		if title == "" {
			continue
		}
		entry := showIndexEntry{
			externalID: FirstString(s, "id_allocine", "internalId"),
			shows:      extractShows(s),
		}
		entry.premiere, entry.hasPrem = FirstBool(s, "isPremiere", "premiere")
		index[title] = entry
	}

	out := make([]MergedMovie, 0, len(listing))
	for _, m := range listing {
		entry := index[FirstString(m, "title")]

		id := FirstString(m, "id_allocine")
		if id == "" {
			id = entry.externalID
		}
		if id == "" {
			id = MovieExternalID(m)
		}
		if id == "" {
			continue
		}

		premiere, ok := FirstBool(m, "isPremiere", "premiere")
		if (!ok || !premiere) && entry.hasPrem {
			premiere = premiere || entry.premiere
		}

		out = append(out, MergedMovie{
			ExternalID: id,
			Payload:    m,
			IsPremiere: premiere,
			Shows:      entry.shows,
		})
	}
	return out
}

// extractShows pulls the nested screening entries out of one showtime
// listing record. Entries without a start timestamp are skipped.
func extractShows(s Raw) []ShowEntry {
	rawShows, _ := s["showtimes"].([]any)
	out := make([]ShowEntry, 0, len(rawShows))
	for _, rs := range rawShows {
		m, ok := rs.(Raw)
		if !ok {
			continue
		}
		startsAt := FirstString(m, "startsAt", "starts_at")
		if startsAt == "" {
			continue
		}
		out = append(out, ShowEntry{
			StartsAt:         startsAt,
			DiffusionVersion: CanonicalDiffusion(FirstString(m, "diffusionVersion", "diffusion_version")),
			Format:           FirstString(m, "format"),
			ReservationURL:   FirstString(m, "reservation_url", "reservationUrl"),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
