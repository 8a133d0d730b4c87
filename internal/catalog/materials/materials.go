// Package materials holds the catalog data model shared by the loader,
// validators and persistent stores.
package materials

import "strings"

// CacheKey is the single key the composed dataset is stored under.
const CacheKey = "materials"

// MaterialRecord is one material model entry of the catalog.
//
// The *Data fields are raw keyword-deck text and are passed through
// verbatim. Records produced by the build step additionally carry UniqueID
// and Metadata.
type MaterialRecord struct {
	UniqueID       string          `json:"uniqueId,omitempty" yaml:"uniqueId,omitempty"`
	ID             string          `json:"id" yaml:"id"`
	Mat            string          `json:"mat,omitempty" yaml:"mat,omitempty"`
	MatAdd         string          `json:"mat_add,omitempty" yaml:"mat_add,omitempty"`
	MatThermal     string          `json:"mat_thermal,omitempty" yaml:"mat_thermal,omitempty"`
	EOS            string          `json:"eos,omitempty" yaml:"eos,omitempty"`
	MatData        string          `json:"mat_data,omitempty" yaml:"mat_data,omitempty"`
	EOSData        string          `json:"eos_data,omitempty" yaml:"eos_data,omitempty"`
	MatAddData     string          `json:"mat_add_data,omitempty" yaml:"mat_add_data,omitempty"`
	MatThermalData string          `json:"mat_thermal_data,omitempty" yaml:"mat_thermal_data,omitempty"`
	App            []string        `json:"app" yaml:"app,omitempty"`
	Ref            string          `json:"ref,omitempty" yaml:"ref,omitempty"`
	URL            string          `json:"url,omitempty" yaml:"url,omitempty"`
	Add            string          `json:"add,omitempty" yaml:"add,omitempty"`
	Metadata       *RecordMetadata `json:"metadata,omitempty" yaml:"-"`
}

// RecordMetadata is the per-record enrichment written by the build step.
type RecordMetadata struct {
	SourceFile    string   `json:"sourceFile,omitempty"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	MaterialType  string   `json:"materialType,omitempty"`
	LastProcessed string   `json:"lastProcessed,omitempty"`
	SearchText    string   `json:"searchText,omitempty"`
}

// Valid reports whether the record carries a usable primary key.
func (r MaterialRecord) Valid() bool {
	return strings.TrimSpace(r.ID) != ""
}

// SourceUnit is one entry of a hand-authored YAML file. Authors either wrap
// the record under "material" or write its fields at the top level; the
// wrapper may also carry app/ref/url/add next to "material".
type SourceUnit struct {
	Material       *MaterialRecord `yaml:"material,omitempty"`
	MaterialRecord `yaml:",inline"`
}

// Record unwraps the unit. Wrapper-level app/ref/url/add take precedence
// over the wrapped record's values, matching how the build step reads them.
func (u SourceUnit) Record() MaterialRecord {
	if u.Material == nil {
		return u.MaterialRecord
	}
	rec := *u.Material
	if len(u.App) > 0 {
		rec.App = u.App
	}
	if u.Ref != "" {
		rec.Ref = u.Ref
	}
	if u.URL != "" {
		rec.URL = u.URL
	}
	if u.Add != "" {
		rec.Add = u.Add
	}
	return rec
}

// SearchEntry is one row of the lightweight search-index projection.
type SearchEntry struct {
	UniqueID   string   `json:"uniqueId"`
	ID         string   `json:"id"`
	Mat        string   `json:"mat"`
	SearchText string   `json:"searchText"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
}

// Count is a named facet with its number of materials.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Categories is the categories.json artifact.
type Categories struct {
	Categories    []Count `json:"categories"`
	MaterialTypes []Count `json:"materialTypes,omitempty"`
	Tags          []Count `json:"tags,omitempty"`
}

// Metadata describes a dataset as a whole.
type Metadata struct {
	TotalMaterials int       `json:"totalMaterials"`
	TotalFiles     int       `json:"totalFiles,omitempty"`
	Categories     []string  `json:"categories,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	MaterialTypes  []string  `json:"materialTypes,omitempty"`
	GeneratedAt    string    `json:"generatedAt,omitempty"`
	Version        string    `json:"version,omitempty"`
	LoadedVia      LoadedVia `json:"loadedVia,omitempty"`
}

// Dataset is the composed dataset held as the authoritative cached result.
// A Dataset is never mutated after it has been stored; reloads replace it.
type Dataset struct {
	Materials   []MaterialRecord `json:"materials"`
	Metadata    Metadata         `json:"metadata"`
	SearchIndex []SearchEntry    `json:"searchIndex,omitempty"`
	Categories  *Categories      `json:"categories,omitempty"`
}

// Clone returns a copy with its own Materials and SearchIndex slices, so
// callers can stamp metadata fields like LoadedVia on it.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := *d
	out.Materials = append([]MaterialRecord(nil), d.Materials...)
	out.SearchIndex = append([]SearchEntry(nil), d.SearchIndex...)
	if d.Categories != nil {
		c := *d.Categories
		out.Categories = &c
	}
	return &out
}

// Validators is the Last-Modified/ETag pair a server sent for the full
// dataset. Two pairs are equal only if both headers match.
type Validators struct {
	LastModified string `json:"lastModified,omitempty"`
	ETag         string `json:"etag,omitempty"`
}

func (v Validators) IsZero() bool { return v.LastModified == "" && v.ETag == "" }
