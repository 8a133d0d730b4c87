package validate

import (
	"bytes"
	"encoding/json"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

// FullArtifact is materials.json / materials-min.json.
type FullArtifact struct {
	Materials []materials.MaterialRecord `json:"materials"`
	Metadata  materials.Metadata         `json:"metadata"`
}

// IndexArtifact is search-index.json.
type IndexArtifact struct {
	Materials []materials.SearchEntry `json:"materials"`
}

// Result is a shape-checked artifact. Exactly one of Full, Index or
// Categories is set, according to Kind. Skipped counts array entries that
// could not be decoded and were left out.
type Result struct {
	Kind       materials.ArtifactKind
	Full       *FullArtifact
	Index      *IndexArtifact
	Categories *materials.Categories
	Skipped    int
}

// envelope holds the top-level fields of a full or index artifact with the
// entries still undecoded.
type envelope struct {
	Materials []json.RawMessage `json:"materials"`
	Metadata  json.RawMessage   `json:"metadata"`
}

// decodeEach decodes every entry it can and counts the ones it cannot.
func decodeEach[T any](raw []json.RawMessage) ([]T, int) {
	out := make([]T, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

// Artifact checks raw JSON against the shape required for kind and decodes
// it into the matching typed value.
func Artifact(kind materials.ArtifactKind, raw []byte) (Result, error) {
	if !kind.Known() {
		return Result{}, &ValidationError{Kind: kind, Reason: "unknown artifact kind"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Result{}, &ValidationError{Kind: kind, Reason: "not a JSON object", Err: err}
	}
	if fields == nil {
		return Result{}, &ValidationError{Kind: kind, Reason: "not a JSON object"}
	}

	switch kind {
	case materials.ArtifactFull, materials.ArtifactFullMin:
		if !isArray(fields["materials"]) {
			return Result{}, &ValidationError{Kind: kind, Reason: "missing materials array"}
		}
		if !isObject(fields["metadata"]) {
			return Result{}, &ValidationError{Kind: kind, Reason: "missing metadata"}
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return Result{}, &ValidationError{Kind: kind, Reason: "malformed materials data", Err: err}
		}
		var out FullArtifact
		if err := json.Unmarshal(env.Metadata, &out.Metadata); err != nil {
			return Result{}, &ValidationError{Kind: kind, Reason: "malformed metadata", Err: err}
		}
		var skipped int
		out.Materials, skipped = decodeEach[materials.MaterialRecord](env.Materials)
		return Result{Kind: kind, Full: &out, Skipped: skipped}, nil

	case materials.ArtifactSearchIndex:
		if !isArray(fields["materials"]) {
			return Result{}, &ValidationError{Kind: kind, Reason: "missing materials array"}
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return Result{}, &ValidationError{Kind: kind, Reason: "malformed search index", Err: err}
		}
		var out IndexArtifact
		var skipped int
		out.Materials, skipped = decodeEach[materials.SearchEntry](env.Materials)
		return Result{Kind: kind, Index: &out, Skipped: skipped}, nil

	default:
		if !isArray(fields["categories"]) {
			return Result{}, &ValidationError{Kind: kind, Reason: "missing categories array"}
		}
		var out materials.Categories
		if err := json.Unmarshal(raw, &out); err != nil {
			return Result{}, &ValidationError{Kind: kind, Reason: "malformed categories data", Err: err}
		}
		return Result{Kind: kind, Categories: &out}, nil
	}
}

// Manifest decodes file-list.json. A manifest that is not a non-empty array
// of names is rejected.
func Manifest(raw []byte) ([]string, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, &ValidationError{Kind: materials.Manifest, Reason: "file list is not an array of names", Err: err}
	}
	if len(names) == 0 {
		return nil, &ValidationError{Kind: materials.Manifest, Reason: "file list is empty or not valid"}
	}
	return names, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
