package validate

import (
	"errors"
	"testing"

	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

func TestArtifactShapes(t *testing.T) {
	cases := []struct {
		name    string
		kind    materials.ArtifactKind
		raw     string
		wantErr bool
	}{
		{"full ok", materials.ArtifactFull, `{"materials":[{"id":"1"}],"metadata":{"version":"2.0.0"}}`, false},
		{"min ok", materials.ArtifactFullMin, `{"materials":[],"metadata":{}}`, false},
		{"full missing metadata", materials.ArtifactFull, `{"materials":[]}`, true},
		{"full null metadata", materials.ArtifactFullMin, `{"materials":[],"metadata":null}`, true},
		{"full materials not array", materials.ArtifactFull, `{"materials":{},"metadata":{}}`, true},
		{"full bad record skipped", materials.ArtifactFull, `{"materials":[42],"metadata":{}}`, false},
		{"full bad metadata", materials.ArtifactFull, `{"materials":[],"metadata":{"totalMaterials":"many"}}`, true},
		{"index ok", materials.ArtifactSearchIndex, `{"materials":[{"uniqueId":"a_x","id":"a"}]}`, false},
		{"index missing", materials.ArtifactSearchIndex, `{"entries":[]}`, true},
		{"categories ok", materials.ArtifactCategories, `{"categories":[{"name":"metal","count":2}],"materialTypes":[],"tags":[]}`, false},
		{"categories missing", materials.ArtifactCategories, `{"materialTypes":[]}`, true},
		{"top level array", materials.ArtifactCategories, `[]`, true},
		{"null document", materials.ArtifactSearchIndex, `null`, true},
		{"not json", materials.ArtifactFull, `<html>`, true},
		{"unknown kind", materials.ArtifactKind("other.json"), `{}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Artifact(tc.kind, []byte(tc.raw))
			if tc.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("want ValidationError, got %v", err)
				}
				if verr.Kind != tc.kind {
					t.Fatalf("kind=%q want %q", verr.Kind, tc.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Artifact: %v", err)
			}
			if res.Kind != tc.kind {
				t.Fatalf("result kind=%q", res.Kind)
			}
		})
	}
}

func TestArtifactTypedResult(t *testing.T) {
	res, err := Artifact(materials.ArtifactFullMin, []byte(`{"materials":[{"id":"MAT_024","mat":"Johnson-Cook","app":["Impact"]}],"metadata":{"version":"2.0.0","totalMaterials":1}}`))
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if res.Full == nil || res.Index != nil || res.Categories != nil {
		t.Fatalf("unexpected result variant: %+v", res)
	}
	if res.Full.Metadata.Version != "2.0.0" {
		t.Fatalf("version=%q", res.Full.Metadata.Version)
	}
	if len(res.Full.Materials) != 1 || res.Full.Materials[0].App[0] != "Impact" {
		t.Fatalf("materials=%+v", res.Full.Materials)
	}
}

func TestArtifactSkipsMistypedRecords(t *testing.T) {
	raw := `{"materials":[
		{"id":"MAT_024","app":"Crash"},
		{"id":3},
		{"id":"MAT_003","app":["Forming"]}
	],"metadata":{"version":"2.1.0"}}`
	res, err := Artifact(materials.ArtifactFullMin, []byte(raw))
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if res.Skipped != 2 || len(res.Full.Materials) != 1 || res.Full.Materials[0].ID != "MAT_003" {
		t.Fatalf("skipped=%d materials=%+v", res.Skipped, res.Full.Materials)
	}

	res, err = Artifact(materials.ArtifactSearchIndex, []byte(`{"materials":[{"id":"a","tags":"x"},{"id":"b"}]}`))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if res.Skipped != 1 || len(res.Index.Materials) != 1 || res.Index.Materials[0].ID != "b" {
		t.Fatalf("skipped=%d index=%+v", res.Skipped, res.Index.Materials)
	}
}

func TestManifest(t *testing.T) {
	names, err := Manifest([]byte(`["a.yaml","b.yaml"]`))
	if err != nil || len(names) != 2 {
		t.Fatalf("names=%v err=%v", names, err)
	}
	for _, raw := range []string{`[]`, `{}`, `null`, `"a.yaml"`} {
		if _, err := Manifest([]byte(raw)); err == nil {
			t.Fatalf("manifest %s: expected error", raw)
		}
	}
}

func TestParseSourceDocumentFatal(t *testing.T) {
	cases := map[string]string{
		"empty":     "   \n",
		"syntax":    "- id: [unclosed\n",
		"mapping":   "id: MAT_001\nmat: elastic\n",
		"scalar":    "just text\n",
		"empty seq": "[]\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSourceDocument("x.yaml", []byte(text))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("want ParseError, got %v", err)
			}
			if perr.File != "x.yaml" {
				t.Fatalf("file=%q", perr.File)
			}
		})
	}
}

const mixedUnits = `
- material:
    id: MAT_024
    mat: "*MAT_JOHNSON_COOK"
    mat_data: |
      *MAT_JOHNSON_COOK
      $#     mid        ro         g
               1      7.85      80.0
  app:
    - Ballistic impact
  ref: Johnson and Cook (1983)
  url: https://doi.org/10.1016/0734-743X(83)90026-4
  add: 2024-03-15
- id: MAT_003
  mat: "*MAT_PLASTIC_KINEMATIC"
  app: []
- material:
    mat: "*MAT_ELASTIC"
- mat: "*MAT_RIGID"
- id: ""
- 42
- material:
    id: MAT_077
    app: [Crash]
`

func TestFilterSourceUnits(t *testing.T) {
	units, err := ParseSourceDocument("mixed.yaml", []byte(mixedUnits))
	if err != nil {
		t.Fatalf("ParseSourceDocument: %v", err)
	}
	if len(units) != 7 {
		t.Fatalf("units=%d", len(units))
	}

	recs, err := FilterSourceUnits(logger.Nop(), "mixed.yaml", units)
	if err != nil {
		t.Fatalf("FilterSourceUnits: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("valid=%d want 3: %+v", len(recs), recs)
	}
	for _, r := range recs {
		if r.ID == "" {
			t.Fatalf("record without id passed the filter: %+v", r)
		}
	}

	jc := recs[0]
	if jc.ID != "MAT_024" || jc.Mat != "*MAT_JOHNSON_COOK" {
		t.Fatalf("wrapped record=%+v", jc)
	}
	if len(jc.App) != 1 || jc.App[0] != "Ballistic impact" {
		t.Fatalf("wrapper app not applied: %v", jc.App)
	}
	if jc.Add != "2024-03-15" || jc.Ref == "" || jc.URL == "" {
		t.Fatalf("wrapper fields not applied: %+v", jc)
	}
	if jc.MatData == "" {
		t.Fatalf("mat_data dropped")
	}
	if recs[1].ID != "MAT_003" {
		t.Fatalf("top-level record=%+v", recs[1])
	}
	if recs[2].ID != "MAT_077" || len(recs[2].App) != 1 {
		t.Fatalf("wrapped app=%+v", recs[2])
	}
}

func TestFilterSourceUnitsNoneValid(t *testing.T) {
	units, err := ParseSourceDocument("bad.yaml", []byte("- mat: x\n- material:\n    mat: y\n"))
	if err != nil {
		t.Fatalf("ParseSourceDocument: %v", err)
	}
	_, err = FilterSourceUnits(nil, "bad.yaml", units)
	if !errors.Is(err, ErrNoValidMaterials) {
		t.Fatalf("want ErrNoValidMaterials, got %v", err)
	}
}

func TestFilterSourceUnitsKeepsMistypedFields(t *testing.T) {
	doc := `
- id: MAT_001
  mat: "*MAT_ELASTIC"
  app: Crash
- material:
    id: MAT_002
    ref: [a, b]
    mat: "*MAT_RIGID"
- app: Crash
`
	units, err := ParseSourceDocument("typed.yaml", []byte(doc))
	if err != nil {
		t.Fatalf("ParseSourceDocument: %v", err)
	}
	recs, err := FilterSourceUnits(logger.Nop(), "typed.yaml", units)
	if err != nil {
		t.Fatalf("FilterSourceUnits: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("valid=%d want 2: %+v", len(recs), recs)
	}
	if recs[0].ID != "MAT_001" || recs[0].Mat != "*MAT_ELASTIC" || len(recs[0].App) != 0 {
		t.Fatalf("first=%+v", recs[0])
	}
	if recs[1].ID != "MAT_002" || recs[1].Mat != "*MAT_RIGID" || recs[1].Ref != "" {
		t.Fatalf("second=%+v", recs[1])
	}
}
