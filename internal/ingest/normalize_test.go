package ingest

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want *int
	}{
		{"nil", nil, nil},
		{"int minutes", 95, intPtr(95)},
		{"float minutes", float64(120), intPtr(120)},
		{"numeric string", "105", intPtr(105)},
		{"hours and minutes", "1h 55min", intPtr(115)},
		{"hours only", "2h", intPtr(120)},
		{"minutes only", "45min", intPtr(45)},
		{"garbage", "bientôt", nil},
		{"empty", "", nil},
		{"negative", -10, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDuration(tc.in)
			if (got == nil) != (tc.want == nil) {
				t.Fatalf("ParseDuration(%v) = %v, want %v", tc.in, got, tc.want)
			}
			if got != nil && *got != *tc.want {
				t.Fatalf("ParseDuration(%v) = %d, want %d", tc.in, *got, *tc.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-09-10", "10/09/2025", "2025/09/10", "10-09-2025", "2025-09-10T14:00:00"} {
		got := ParseDate(in)
		if got == nil || !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}
	if got := ParseDate("not a date"); got != nil {
		t.Fatalf("ParseDate(garbage) = %v, want nil", got)
	}
	if got := ParseDate(nil); got != nil {
		t.Fatalf("ParseDate(nil) = %v, want nil", got)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Un  film <strong>magnifique</strong></p>")
	if got != "Un film magnifique" {
		t.Fatalf("StripHTML = %q", got)
	}
	if got := StripHTML("   "); got != "" {
		t.Fatalf("StripHTML(blank) = %q", got)
	}
	if got := StripHTML("plain text"); got != "plain text" {
		t.Fatalf("StripHTML(plain) = %q", got)
	}
}

func TestNormalizeList(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"comma string", "Drame, Comédie, Drame", []string{"Drame", "Comédie"}},
		{"braced string", "{Drame,Comédie}", []string{"Drame", "Comédie"}},
		{"any slice", []any{"Action", " Aventure "}, []string{"Action", "Aventure"}},
		{"string slice", []string{"VF", "VF", ""}, []string{"VF"}},
		{"nil", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeList(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("NormalizeList(%v) = %v, want %v", tc.in, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("NormalizeList(%v)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestCanonicalDiffusion(t *testing.T) {
	cases := map[string]string{
		"original": "ORIGINAL",
		" subbed ": "SUBS",
		"SUBS":     "SUBS",
		"Dubbed":   "DUBBED",
		"":         "",
	}
	for in, want := range cases {
		if got := CanonicalDiffusion(in); got != want {
			t.Fatalf("CanonicalDiffusion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoinTags(t *testing.T) {
	if got := JoinTags(nil); got != nil {
		t.Fatalf("JoinTags(nil) = %v, want nil", got)
	}
	got := JoinTags([]string{"Drame", "Comédie"})
	if got == nil || *got != "Drame, Comédie" {
		t.Fatalf("JoinTags = %v", got)
	}
}

func intPtr(n int) *int { return &n }
