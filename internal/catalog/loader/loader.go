// Package loader owns the composed materials dataset: it runs the two-phase
// progressive load (or the single-artifact complete load), keeps the result
// as the one cached entry, and hands failures to the fallback chain.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/materialmap/internal/catalog/fallback"
	"github.com/yungbote/materialmap/internal/catalog/fetchcache"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/notify"
	"github.com/yungbote/materialmap/internal/catalog/persist"
	"github.com/yungbote/materialmap/internal/platform/ctxutil"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

// PhaseIndex names the progressive-load event sent once phase 1 resolved.
const PhaseIndex = "index"

// Artifacts is the subset of fetchcache.Registry the loader needs.
type Artifacts interface {
	Fetch(ctx context.Context, kind materials.ArtifactKind) (*fetchcache.Artifact, error)
	InFlight() int
	Clear()
}

type Recoverer interface {
	Recover(ctx context.Context, cause error) (*fallback.Outcome, error)
}

type Connectivity interface {
	Online() bool
}

type VersionRecorder interface {
	SaveValidators(ctx context.Context, v materials.Validators) error
}

type Options struct {
	Progressive  bool
	UseCache     bool
	ForceRefresh bool
}

func DefaultOptions() Options {
	return Options{Progressive: true, UseCache: true}
}

// IndexPayload is published once phase 1 has resolved, before the full
// records arrive.
type IndexPayload struct {
	SearchIndex []materials.SearchEntry `json:"searchIndex"`
	Categories  *materials.Categories   `json:"categories"`
}

type Config struct {
	Log          *logger.Logger
	Artifacts    Artifacts
	Connectivity Connectivity
	Publisher    notify.Publisher
	// Persist receives every dataset produced by a primary load. Optional.
	Persist  persist.Port
	Versions VersionRecorder

	// Getter, BaseURL and ProbeTimeout build the default fallback chain
	// (legacy, memory, persistent). Fallback replaces that chain.
	Getter       fallback.Getter
	BaseURL      string
	ProbeTimeout time.Duration
	Fallback     Recoverer
}

type Loader struct {
	log       *logger.Logger
	artifacts Artifacts
	online    Connectivity
	pub       notify.Publisher
	port      persist.Port
	versions  VersionRecorder
	fallback  Recoverer

	mu      sync.Mutex
	cached  *materials.Dataset
	version string
	state   LoadingState
	report  *Report
	now     func() time.Time
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

func New(cfg Config) (*Loader, error) {
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("artifacts required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	online := cfg.Connectivity
	if online == nil {
		online = alwaysOnline{}
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = notify.Discard{}
	}

	l := &Loader{
		log:       log.With("component", "Loader"),
		artifacts: cfg.Artifacts,
		online:    online,
		pub:       pub,
		port:      cfg.Persist,
		versions:  cfg.Versions,
		fallback:  cfg.Fallback,
		state:     LoadingState{Status: StatusIdle},
		now:       time.Now,
	}
	if l.fallback == nil {
		if cfg.Getter == nil {
			return nil, fmt.Errorf("getter required for the default fallback chain")
		}
		l.fallback = fallback.New(log,
			fallback.NewLegacy(log, cfg.Getter, cfg.BaseURL, l),
			fallback.NewMemory(l.Cached),
			fallback.NewPersistent(cfg.Persist, cfg.ProbeTimeout),
		)
	}
	return l, nil
}

// Load returns the composed dataset. A cached dataset is returned without
// any network activity unless opts asks for a refresh. When the primary
// load fails the fallback chain is tried; the returned error is then an
// *fallback.AllStrategiesFailedError.
func (l *Loader) Load(ctx context.Context, opts Options) (*materials.Dataset, error) {
	if opts.UseCache && !opts.ForceRefresh {
		if ds := l.Cached(); ds != nil {
			l.mu.Lock()
			l.state.Status = StatusComplete
			l.mu.Unlock()
			l.log.Debug("serving cached dataset", "materials", len(ds.Materials))
			return ds, nil
		}
	}

	ctx, span := otel.Tracer("materialmap/loader").Start(ctx, "loader.Load")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("load.progressive", opts.Progressive),
		attribute.Bool("load.force_refresh", opts.ForceRefresh),
	)

	attempt := l.begin()
	ctx = ctxutil.WithAttempt(ctx, attempt.String())
	l.log.Info("loading materials", "attempt", attempt, "progressive", opts.Progressive)

	var (
		ds  *materials.Dataset
		err error
	)
	if opts.Progressive {
		ds, err = l.loadProgressive(ctx)
	} else {
		ds, err = l.loadComplete(ctx)
	}
	if err == nil {
		span.SetAttributes(attribute.Int("load.materials", len(ds.Materials)))
		return ds, nil
	}

	l.log.Warn("primary load failed", "attempt", attempt, "error", err)
	l.setFailed(err)

	out, ferr := l.fallback.Recover(ctx, err)
	if ferr != nil {
		rep := l.setTerminal(ferr)
		l.log.Error("materials could not be loaded", "attempt", attempt, "error", ferr)
		l.pub.Publish(notify.Event{Type: notify.EventLoadFailed, Data: rep})
		span.RecordError(ferr)
		span.SetStatus(codes.Error, ferr.Error())
		return nil, ferr
	}

	if out.Via == materials.LoadedViaLegacy {
		l.store(out.Dataset)
	}
	l.mu.Lock()
	l.state.LoadedVia = out.Via
	l.mu.Unlock()
	span.SetAttributes(attribute.String("load.via", string(out.Via)))
	return out.Dataset, nil
}

// Retry starts a fresh attempt that bypasses the cached dataset.
func (l *Loader) Retry(ctx context.Context, opts Options) (*materials.Dataset, error) {
	opts.ForceRefresh = true
	return l.Load(ctx, opts)
}

func (l *Loader) loadProgressive(ctx context.Context) (*materials.Dataset, error) {
	l.setStatus(StatusPhase1)

	var idx, cats *fetchcache.Artifact
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := l.artifacts.Fetch(gctx, materials.ArtifactSearchIndex)
		idx = a
		return err
	})
	g.Go(func() error {
		a, err := l.artifacts.Fetch(gctx, materials.ArtifactCategories)
		cats = a
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.pub.Publish(notify.Event{
		Type:  notify.EventProgressiveLoad,
		Phase: PhaseIndex,
		Data:  IndexPayload{SearchIndex: idx.Index.Materials, Categories: cats.Categories},
	})

	l.setStatus(StatusPhase2)
	full, err := l.artifacts.Fetch(ctx, materials.ArtifactFullMin)
	if err != nil {
		return nil, err
	}

	ds := l.compose(full, materials.LoadedViaProgressive)
	ds.SearchIndex = idx.Index.Materials
	ds.Categories = cats.Categories
	l.commit(ctx, ds, full)
	return ds, nil
}

func (l *Loader) loadComplete(ctx context.Context) (*materials.Dataset, error) {
	l.setStatus(StatusPhase2)
	full, err := l.artifacts.Fetch(ctx, materials.ArtifactFull)
	if err != nil {
		return nil, err
	}
	ds := l.compose(full, materials.LoadedViaComplete)
	l.commit(ctx, ds, full)
	return ds, nil
}

// compose builds a new dataset from a full artifact, dropping records
// without an id.
func (l *Loader) compose(full *fetchcache.Artifact, via materials.LoadedVia) *materials.Dataset {
	recs := make([]materials.MaterialRecord, 0, len(full.Full.Materials))
	dropped := 0
	for _, r := range full.Full.Materials {
		if !r.Valid() {
			dropped++
			continue
		}
		recs = append(recs, r)
	}
	if dropped > 0 {
		l.log.Warn("dropped records without id", "artifact", full.Kind, "dropped", dropped)
	}
	md := full.Full.Metadata
	md.LoadedVia = via
	return &materials.Dataset{Materials: recs, Metadata: md}
}

// commit makes ds the cached entry, then mirrors it to the persistent
// worker and records the full dataset's validators. The last two are best
// effort.
func (l *Loader) commit(ctx context.Context, ds *materials.Dataset, src *fetchcache.Artifact) {
	l.store(ds)
	l.mu.Lock()
	l.state.Status = StatusComplete
	l.state.LoadedVia = ds.Metadata.LoadedVia
	l.mu.Unlock()
	l.log.Info("materials loaded", "materials", len(ds.Materials), "version", ds.Metadata.Version, "via", ds.Metadata.LoadedVia)

	if l.port != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persist.ProbeTimeout)
		if err := persist.Save(pctx, l.port, ds); err != nil {
			l.log.Warn("persisting dataset failed", "error", err)
		}
		cancel()
	}
	if l.versions != nil && src != nil && src.Kind == materials.ArtifactFull {
		v := materials.Validators{LastModified: src.LastModified, ETag: src.ETag}
		if !v.IsZero() {
			if err := l.versions.SaveValidators(ctx, v); err != nil {
				l.log.Warn("recording validators failed", "error", err)
			}
		}
	}
}

func (l *Loader) store(ds *materials.Dataset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = ds
	l.version = ds.Metadata.Version
}

// Cached is the current dataset, or nil.
func (l *Loader) Cached() *materials.Dataset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cached
}

// ClearCache drops the cached dataset and any in-flight artifact entries.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cached = nil
	l.version = ""
	l.mu.Unlock()
	l.artifacts.Clear()
	l.log.Info("cache cleared")
}

// ClearPersistent asks the persistent worker to drop its dataset.
func (l *Loader) ClearPersistent(ctx context.Context) error {
	return persist.Clear(ctx, l.port)
}

// HandleUpdate reacts to a message from another process sharing the data.
// DATA_UPDATED clears the cache and is passed on to local subscribers.
func (l *Loader) HandleUpdate(msg notify.Message) {
	if msg.Type != notify.MessageDataUpdated {
		return
	}
	l.log.Info("data updated elsewhere, clearing cache", "origin", msg.Origin, "etag", msg.ETag)
	l.ClearCache()
	l.pub.Publish(notify.Event{Type: notify.EventDataUpdated, Data: msg})
}

func (l *Loader) Stats() Stats {
	l.mu.Lock()
	size := 0
	if l.cached != nil {
		size = 1
	}
	version := l.version
	l.mu.Unlock()
	return Stats{
		CacheSize:       size,
		IsOnline:        l.online.Online(),
		Version:         version,
		LoadingPromises: l.artifacts.InFlight(),
	}
}

// State returns a copy of the current attempt's progress.
func (l *Loader) State() LoadingState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// Report returns the failure report of the last attempt, if it failed.
func (l *Loader) Report() (Report, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.report == nil {
		return Report{}, false
	}
	r := *l.report
	r.FailedFiles = append([]string(nil), r.FailedFiles...)
	return r, true
}

func (l *Loader) BeginFiles(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.TotalFiles = total
}

func (l *Loader) FileProcessed(string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.ProcessedFiles++
}

func (l *Loader) FileFailed(name string, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.FailedFiles = append(l.state.FailedFiles, name)
}

func (l *Loader) begin() uuid.UUID {
	id := uuid.New()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = LoadingState{
		AttemptID: id,
		Status:    StatusIdle,
		StartedAt: l.now().UTC(),
		IsOffline: !l.online.Online(),
	}
	l.report = nil
	return id
}

func (l *Loader) setStatus(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Status = s
}

func (l *Loader) setFailed(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Status = StatusFailed
	l.state.LastError = err.Error()
}

func (l *Loader) setTerminal(err error) Report {
	offline := !l.online.Online()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.LastError = err.Error()
	l.state.IsOffline = offline
	rep := Report{
		Title:          "Failed to load materials",
		Message:        err.Error(),
		FailedFiles:    append([]string(nil), l.state.FailedFiles...),
		ProcessedFiles: l.state.ProcessedFiles,
		Offline:        offline,
	}
	l.report = &rep
	return rep
}
