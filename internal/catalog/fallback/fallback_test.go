package fallback

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/materialmap/internal/catalog/fetch"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/persist"
	"github.com/yungbote/materialmap/internal/catalog/validate"
)

const base = "https://catalog.example.org/materialmap"

type mapGetter struct {
	mu    sync.Mutex
	body  map[string]string
	calls []string
}

func (g *mapGetter) Get(_ context.Context, url string) (*fetch.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, url)
	body, ok := g.body[url]
	if !ok {
		return nil, &fetch.NetworkError{URL: url, Attempts: 1, Err: &fetch.HTTPError{StatusCode: http.StatusNotFound, Status: "Not Found"}}
	}
	return &fetch.Response{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type trackerRecorder struct {
	total     int
	processed []string
	failed    []string
}

func (r *trackerRecorder) BeginFiles(n int)                { r.total = n }
func (r *trackerRecorder) FileProcessed(name string)       { r.processed = append(r.processed, name) }
func (r *trackerRecorder) FileFailed(name string, _ error) { r.failed = append(r.failed, name) }

type stubStrategy struct {
	name  materials.LoadedVia
	ds    *materials.Dataset
	err   error
	calls atomic.Int32
}

func (s *stubStrategy) Name() materials.LoadedVia { return s.name }

func (s *stubStrategy) Load(context.Context) (*materials.Dataset, error) {
	s.calls.Add(1)
	return s.ds, s.err
}

const steelYAML = `
- material:
    id: MAT_024
    mat: "*MAT_PIECEWISE_LINEAR_PLASTICITY"
  app: [crash]
- id: MAT_003
  mat: "*MAT_PLASTIC_KINEMATIC"
`

const polymerYAML = `
- id: MAT_181
  mat: "*MAT_SIMPLIFIED_RUBBER"
- mat: "no id here"
`

func TestLegacyStrategySkipsFailedFiles(t *testing.T) {
	g := &mapGetter{body: map[string]string{
		base + "/dist/file-list.json": `["steel.yaml","broken.yaml","polymer.yaml","missing.yaml"]`,
		base + "/data/steel.yaml":     steelYAML,
		base + "/data/broken.yaml":    "- id: [unclosed",
		base + "/data/polymer.yaml":   polymerYAML,
	}}
	tr := &trackerRecorder{}
	s := NewLegacy(nil, g, base, tr)
	s.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }

	ds, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ds.Materials) != 3 {
		t.Fatalf("materials=%d want 3", len(ds.Materials))
	}
	if ds.Materials[0].ID != "MAT_024" || ds.Materials[0].App[0] != "crash" {
		t.Fatalf("wrapped unit not unwrapped: %+v", ds.Materials[0])
	}
	md := ds.Metadata
	if md.LoadedVia != materials.LoadedViaLegacy || md.TotalMaterials != 3 || md.GeneratedAt != "2025-06-02T10:00:00Z" {
		t.Fatalf("metadata=%+v", md)
	}
	if tr.total != 4 || len(tr.processed) != 2 || strings.Join(tr.failed, ",") != "broken.yaml,missing.yaml" {
		t.Fatalf("tracker=%+v", tr)
	}
}

func TestLegacyStrategyManifestFailures(t *testing.T) {
	for name, manifest := range map[string]string{
		"empty":     `[]`,
		"not array": `{"files":["a.yaml"]}`,
	} {
		g := &mapGetter{body: map[string]string{base + "/dist/file-list.json": manifest}}
		_, err := NewLegacy(nil, g, base, nil).Load(context.Background())
		var verr *validate.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: want ValidationError, got %v", name, err)
		}
	}

	g := &mapGetter{body: map[string]string{}}
	if _, err := NewLegacy(nil, g, base, nil).Load(context.Background()); fetch.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("missing manifest: %v", err)
	}
}

func TestLegacyStrategyAllFilesFailed(t *testing.T) {
	g := &mapGetter{body: map[string]string{
		base + "/dist/file-list.json": `["a.yaml","b.yaml"]`,
		base + "/data/a.yaml":         "- mat: no id",
	}}
	_, err := NewLegacy(nil, g, base, nil).Load(context.Background())
	if err == nil || err.Error() != "All 2 files failed to load" {
		t.Fatalf("err=%v", err)
	}
}

func TestOrchestratorStopsAtFirstSuccess(t *testing.T) {
	legacy := &stubStrategy{name: materials.LoadedViaLegacy, err: errors.New("file list unavailable")}
	memory := &stubStrategy{name: materials.LoadedViaMemory, ds: &materials.Dataset{Materials: []materials.MaterialRecord{{ID: "MAT_001"}}}}
	persistent := &stubStrategy{name: materials.LoadedViaPersistent, ds: &materials.Dataset{}}

	o := New(nil, legacy, memory, persistent)
	out, err := o.Recover(context.Background(), errors.New("Failed to fetch search-index.json"))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if out.Via != materials.LoadedViaMemory || out.Dataset.Materials[0].ID != "MAT_001" {
		t.Fatalf("outcome=%+v", out)
	}
	if legacy.calls.Load() != 1 || memory.calls.Load() != 1 || persistent.calls.Load() != 0 {
		t.Fatalf("calls legacy=%d memory=%d persistent=%d", legacy.calls.Load(), memory.calls.Load(), persistent.calls.Load())
	}
}

func TestOrchestratorAllFailed(t *testing.T) {
	cause := &fetch.NetworkError{URL: base + "/dist/search-index.json", Attempts: 3, Err: errors.New("connection refused")}
	o := New(nil,
		&stubStrategy{name: materials.LoadedViaLegacy, err: errors.New("File list is empty or not valid.")},
		NewMemory(func() *materials.Dataset { return nil }),
		NewPersistent(nil, 10*time.Millisecond),
	)
	_, err := o.Recover(context.Background(), cause)

	var all *AllStrategiesFailedError
	if !errors.As(err, &all) {
		t.Fatalf("want AllStrategiesFailedError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "All loading strategies failed. Original error: ") || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("message=%q", err.Error())
	}
	if len(all.Attempts) != 3 {
		t.Fatalf("attempts=%d", len(all.Attempts))
	}
	if !errors.Is(all.Attempts[1].Err, ErrNoMemoryCache) || !errors.Is(all.Attempts[2].Err, persist.ErrNotCached) {
		t.Fatalf("attempts=%s", all.Details())
	}
	var nerr *fetch.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("cause not reachable through Unwrap")
	}
}

func TestPersistentStrategyUsesWorker(t *testing.T) {
	w, err := persist.NewWorker(nil, persist.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := persist.Save(ctx, w, &materials.Dataset{Materials: []materials.MaterialRecord{{ID: "MAT_077"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := New(nil, NewPersistent(w, time.Second)).Recover(ctx, errors.New("offline"))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if out.Via != materials.LoadedViaPersistent || out.Dataset.Materials[0].ID != "MAT_077" {
		t.Fatalf("outcome=%+v", out)
	}
	if out.Dataset.Metadata.LoadedVia != materials.LoadedViaPersistent {
		t.Fatalf("loadedVia=%q", out.Dataset.Metadata.LoadedVia)
	}
}

func TestMemoryStrategyStampsCopy(t *testing.T) {
	last := &materials.Dataset{
		Materials: []materials.MaterialRecord{{ID: "MAT_024"}},
		Metadata:  materials.Metadata{LoadedVia: materials.LoadedViaProgressive, Version: "2025.06"},
	}
	ds, err := NewMemory(func() *materials.Dataset { return last }).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds == last {
		t.Fatalf("cached dataset returned without copying")
	}
	if ds.Metadata.LoadedVia != materials.LoadedViaMemory || ds.Metadata.Version != "2025.06" || ds.Materials[0].ID != "MAT_024" {
		t.Fatalf("dataset=%+v", ds)
	}
	if last.Metadata.LoadedVia != materials.LoadedViaProgressive {
		t.Fatalf("cached dataset mutated: %q", last.Metadata.LoadedVia)
	}
}
