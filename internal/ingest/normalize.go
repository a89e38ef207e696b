package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var (
	hoursRE   = regexp.MustCompile(`(\d+)\s*h`)
	minutesRE = regexp.MustCompile(`(\d+)\s*min`)
	tagRE     = regexp.MustCompile(`<[^>]+>`)
	spaceRE   = regexp.MustCompile(`\s+`)
)

// dateFormats is the fixed ordered list of calendar layouts tried before
// the lenient fallback.
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
}

// lenientFormats covers timestamps the provider occasionally sends instead
// of a bare date.
var lenientFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDuration converts a raw duration value to total minutes. It accepts
// an integer, a numeric string, or free text like "1h 55min" (either
// component optional). Unparseable input yields nil, never an error.
func ParseDuration(v any) *int {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return durationPtr(t)
	case int64:
		return durationPtr(int(t))
	case float64:
		return durationPtr(int(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		h := hoursRE.FindStringSubmatch(s)
		m := minutesRE.FindStringSubmatch(s)
		if h != nil || m != nil {
			total := 0
			if h != nil {
				n, _ := strconv.Atoi(h[1])
				total += n * 60
			}
			if m != nil {
				n, _ := strconv.Atoi(m[1])
				total += n
			}
			return durationPtr(total)
		}
		if n, err := strconv.Atoi(s); err == nil {
			return durationPtr(n)
		}
		return nil
	default:
		return nil
	}
}

func durationPtr(n int) *int {
	if n < 0 {
		return nil
	}
	return &n
}

// ParseDate parses a raw calendar value, trying the fixed format list and
// then the lenient fallbacks. The result is truncated to a UTC date.
// Unparseable input yields nil.
func ParseDate(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		if t, isTime := v.(time.Time); isTime {
			d := dateOnly(t)
			return &d
		}
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			d := dateOnly(t)
			return &d
		}
	}
	for _, layout := range lenientFormats {
		if t, err := time.Parse(layout, s); err == nil {
			d := dateOnly(t)
			return &d
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StripHTML removes markup from a synopsis fragment and returns the
// space-joined visible text. It walks the parsed node tree; if parsing
// fails it falls back to a tag-stripping regex. Empty input yields "".
func StripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return collapseSpaces(tagRE.ReplaceAllString(s, " "))
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if txt := strings.TrimSpace(n.Data); txt != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(txt)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return collapseSpaces(b.String())
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

// NormalizeList flattens a genre/language field into a deduplicated,
// trimmed, ordered sequence. The raw value may be a list, a comma-joined
// string, or a brace-wrapped string like "{Drame,Comédie}".
func NormalizeList(v any) []string {
	var parts []string
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		for _, e := range t {
			parts = append(parts, splitTags(e)...)
		}
	case []any:
		for _, e := range t {
			parts = append(parts, splitTags(coerceString(e))...)
		}
	case string:
		parts = splitTags(t)
	default:
		parts = splitTags(coerceString(t))
	}

	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func splitTags(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "{}")
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// CanonicalDiffusion normalizes a diffusion/subtitle-mode tag: trimmed,
// upper-cased, with the provider's SUBBED spelling folded into SUBS.
func CanonicalDiffusion(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "SUBBED" {
		return "SUBS"
	}
	return s
}

// JoinTags renders a normalized tag list back into the comma-joined text
// column form, or nil when the list is empty.
func JoinTags(tags []string) *string {
	if len(tags) == 0 {
		return nil
	}
	s := strings.Join(tags, ", ")
	return &s
}
