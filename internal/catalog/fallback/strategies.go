package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/materialmap/internal/catalog/basepath"
	"github.com/yungbote/materialmap/internal/catalog/fetch"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/persist"
	"github.com/yungbote/materialmap/internal/catalog/validate"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

var (
	ErrNoMaterialsLoaded = errors.New("No materials were successfully loaded")
	ErrNoMemoryCache     = errors.New("no cached dataset in memory")
)

// Getter is the subset of fetch.Client the legacy strategy needs.
type Getter interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// Tracker receives per-file progress from the legacy strategy.
type Tracker interface {
	BeginFiles(total int)
	FileProcessed(name string)
	FileFailed(name string, err error)
}

type nopTracker struct{}

func (nopTracker) BeginFiles(int)           {}
func (nopTracker) FileProcessed(string)     {}
func (nopTracker) FileFailed(string, error) {}

// LegacyStrategy rebuilds the dataset from the hand-authored YAML sources
// listed in dist/file-list.json. Files are fetched one at a time; a file
// that fails is recorded and skipped.
type LegacyStrategy struct {
	log     *logger.Logger
	get     Getter
	base    string
	tracker Tracker
	now     func() time.Time
}

func NewLegacy(log *logger.Logger, get Getter, baseURL string, tracker Tracker) *LegacyStrategy {
	if log == nil {
		log = logger.Nop()
	}
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &LegacyStrategy{
		log:     log.With("strategy", materials.LoadedViaLegacy),
		get:     get,
		base:    baseURL,
		tracker: tracker,
		now:     time.Now,
	}
}

func (s *LegacyStrategy) Name() materials.LoadedVia { return materials.LoadedViaLegacy }

func (s *LegacyStrategy) Load(ctx context.Context) (*materials.Dataset, error) {
	manifestURL, err := basepath.Join(s.base, "dist", materials.Manifest)
	if err != nil {
		return nil, err
	}
	resp, err := s.get.Get(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("load file list: %w", err)
	}
	names, err := validate.Manifest(resp.Body)
	if err != nil {
		return nil, err
	}

	s.tracker.BeginFiles(len(names))
	s.log.Info("loading source files", "files", len(names))

	var (
		records   []materials.MaterialRecord
		processed int
		failed    int
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := s.loadFile(ctx, name)
		if err != nil {
			failed++
			s.tracker.FileFailed(name, err)
			s.log.Warn("source file failed", "file", name, "error", err)
			continue
		}
		processed++
		s.tracker.FileProcessed(name)
		s.log.Debug("source file processed", "file", name, "materials", len(recs))
		records = append(records, recs...)
	}

	if failed == len(names) {
		return nil, fmt.Errorf("All %d files failed to load", len(names))
	}
	// A processed file always contributes records, so this only fires if
	// FilterSourceUnits ever accepts an empty file.
	if len(records) == 0 {
		return nil, ErrNoMaterialsLoaded
	}

	return &materials.Dataset{
		Materials: records,
		Metadata: materials.Metadata{
			TotalMaterials: len(records),
			TotalFiles:     processed,
			GeneratedAt:    s.now().UTC().Format(time.RFC3339),
			LoadedVia:      materials.LoadedViaLegacy,
		},
	}, nil
}

func (s *LegacyStrategy) loadFile(ctx context.Context, name string) ([]materials.MaterialRecord, error) {
	u, err := basepath.Join(s.base, "data", name)
	if err != nil {
		return nil, err
	}
	resp, err := s.get.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	units, err := validate.ParseSourceDocument(name, resp.Body)
	if err != nil {
		return nil, err
	}
	recs, err := validate.FilterSourceUnits(s.log, name, units)
	if err != nil {
		return nil, &validate.ParseError{File: name, Err: err}
	}
	return recs, nil
}

// MemoryStrategy hands back a copy of the last dataset the loader accepted,
// stamped as served from memory.
type MemoryStrategy struct {
	last func() *materials.Dataset
}

func NewMemory(last func() *materials.Dataset) *MemoryStrategy {
	return &MemoryStrategy{last: last}
}

func (s *MemoryStrategy) Name() materials.LoadedVia { return materials.LoadedViaMemory }

func (s *MemoryStrategy) Load(context.Context) (*materials.Dataset, error) {
	if s.last == nil {
		return nil, ErrNoMemoryCache
	}
	ds := s.last()
	if ds == nil {
		return nil, ErrNoMemoryCache
	}
	out := ds.Clone()
	out.Metadata.LoadedVia = materials.LoadedViaMemory
	return out, nil
}

// PersistentStrategy asks the persistent worker for its cached dataset and
// gives up after the probe timeout.
type PersistentStrategy struct {
	port    persist.Port
	timeout time.Duration
}

func NewPersistent(port persist.Port, timeout time.Duration) *PersistentStrategy {
	if timeout <= 0 {
		timeout = persist.ProbeTimeout
	}
	return &PersistentStrategy{port: port, timeout: timeout}
}

func (s *PersistentStrategy) Name() materials.LoadedVia { return materials.LoadedViaPersistent }

func (s *PersistentStrategy) Load(ctx context.Context) (*materials.Dataset, error) {
	ds, err := persist.Probe(ctx, s.port, s.timeout)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, persist.ErrNotCached
	}
	out := ds.Clone()
	out.Metadata.LoadedVia = materials.LoadedViaPersistent
	return out, nil
}
