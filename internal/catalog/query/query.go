// Package query holds the read-side helpers used to present a loaded
// dataset: text search, category filtering, ordering and display
// formatting of individual fields.
package query

import (
	"html"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

// Search returns the records whose searchable text contains every
// whitespace-separated term of q, case-insensitively. An empty query
// matches everything.
func Search(recs []materials.MaterialRecord, q string) []materials.MaterialRecord {
	terms := strings.Fields(strings.ToLower(q))
	if len(terms) == 0 {
		return append([]materials.MaterialRecord(nil), recs...)
	}
	out := make([]materials.MaterialRecord, 0, len(recs))
	for _, r := range recs {
		text := searchText(r)
		match := true
		for _, t := range terms {
			if !strings.Contains(text, t) {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out
}

func searchText(r materials.MaterialRecord) string {
	parts := []string{r.ID, r.Mat, r.MatAdd, r.MatThermal, r.EOS, r.Ref, strings.Join(r.App, " ")}
	if r.Metadata != nil {
		parts = append(parts, r.Metadata.SearchText, r.Metadata.Category, r.Metadata.MaterialType)
		parts = append(parts, r.Metadata.Tags...)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// ByCategory keeps records whose metadata category equals category. An
// empty category keeps everything.
func ByCategory(recs []materials.MaterialRecord, category string) []materials.MaterialRecord {
	if category == "" {
		return append([]materials.MaterialRecord(nil), recs...)
	}
	out := make([]materials.MaterialRecord, 0, len(recs))
	for _, r := range recs {
		if r.Metadata != nil && strings.EqualFold(r.Metadata.Category, category) {
			out = append(out, r)
		}
	}
	return out
}

// SortByAdded orders records newest first by their add date. Records
// whose date cannot be parsed keep their relative order after the dated
// ones.
func SortByAdded(recs []materials.MaterialRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		ti, iok := ParseDate(recs[i].Add)
		tj, jok := ParseDate(recs[j].Add)
		switch {
		case iok && jok:
			return ti.After(tj)
		case iok:
			return true
		default:
			return false
		}
	})
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate accepts the date forms found in the source files.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders s as DD.MM.YYYY. Empty input gives "N/A"; input that
// is not a recognizable date is returned unchanged.
func FormatDate(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	t, ok := ParseDate(s)
	if !ok {
		return s
	}
	return t.Format("02.01.2006")
}

// SafeURL returns the HTML-escaped URL if it is an absolute http or https
// URL, and "#" otherwise.
func SafeURL(raw string) string {
	if raw == "" {
		return "#"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "#"
	}
	return html.EscapeString(raw)
}

// AppsOrDash joins the application list for display. A missing and an
// empty list both render as "-".
func AppsOrDash(apps []string) string {
	if len(apps) == 0 {
		return "-"
	}
	return strings.Join(apps, ", ")
}
