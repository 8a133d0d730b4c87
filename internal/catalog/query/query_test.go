package query

import (
	"testing"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

func sample() []materials.MaterialRecord {
	return []materials.MaterialRecord{
		{ID: "MAT_003", Mat: "*MAT_PLASTIC_KINEMATIC", Add: "not a date", Metadata: &materials.RecordMetadata{Category: "metal"}},
		{ID: "MAT_024", Mat: "*MAT_PIECEWISE_LINEAR_PLASTICITY", App: []string{"crash"}, Add: "2024-03-15", Metadata: &materials.RecordMetadata{Category: "metal", SearchText: "steel dp600"}},
		{ID: "MAT_181", Mat: "*MAT_SIMPLIFIED_RUBBER", Add: "2025-01-02", Metadata: &materials.RecordMetadata{Category: "polymer"}},
		{ID: "MAT_077", Mat: "*MAT_HYPERELASTIC_RUBBER"},
	}
}

func ids(recs []materials.MaterialRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestSearch(t *testing.T) {
	cases := []struct {
		q    string
		want int
	}{
		{"", 4},
		{"rubber", 2},
		{"RUBBER simplified", 1},
		{"dp600", 1},
		{"crash", 1},
		{"titanium", 0},
	}
	for _, tc := range cases {
		if got := Search(sample(), tc.q); len(got) != tc.want {
			t.Fatalf("Search(%q)=%v want %d", tc.q, ids(got), tc.want)
		}
	}
}

func TestByCategory(t *testing.T) {
	if got := ByCategory(sample(), "Metal"); len(got) != 2 {
		t.Fatalf("metal=%v", ids(got))
	}
	if got := ByCategory(sample(), ""); len(got) != 4 {
		t.Fatalf("all=%v", ids(got))
	}
}

func TestSortByAdded(t *testing.T) {
	recs := sample()
	SortByAdded(recs)
	got := ids(recs)
	want := []string{"MAT_181", "MAT_024", "MAT_003", "MAT_077"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order=%v want %v", got, want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	cases := map[string]string{
		"":                     "N/A",
		"2024-03-15":           "15.03.2024",
		"2025-06-02T10:00:00Z": "02.06.2025",
		"March 5, 2023":        "05.03.2023",
		"sometime in 2020":     "sometime in 2020",
	}
	for in, want := range cases {
		if got := FormatDate(in); got != want {
			t.Fatalf("FormatDate(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSafeURL(t *testing.T) {
	cases := map[string]string{
		"https://www.dynasupport.com/mat24": "https://www.dynasupport.com/mat24",
		"http://example.org/a?x=1&y=2":      "http://example.org/a?x=1&amp;y=2",
		"javascript:alert(1)":               "#",
		"ftp://example.org/file":            "#",
		"/relative/path":                    "#",
		"":                                  "#",
	}
	for in, want := range cases {
		if got := SafeURL(in); got != want {
			t.Fatalf("SafeURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestAppsOrDash(t *testing.T) {
	if AppsOrDash(nil) != "-" || AppsOrDash([]string{}) != "-" {
		t.Fatalf("absent and empty app lists must both render as -")
	}
	if got := AppsOrDash([]string{"crash", "forming"}); got != "crash, forming" {
		t.Fatalf("AppsOrDash=%q", got)
	}
}
