// Package fetchcache coalesces concurrent artifact fetches so that at most
// one request per artifact name is on the wire at a time.
package fetchcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/materialmap/internal/catalog/basepath"
	"github.com/yungbote/materialmap/internal/catalog/fetch"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/validate"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

// Fetcher is the subset of fetch.Client the registry needs.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// Artifact is a fetched and shape-checked artifact together with the cache
// validators the server sent for it.
type Artifact struct {
	validate.Result
	LastModified string
	ETag         string
}

type Registry struct {
	log     *logger.Logger
	fetcher Fetcher
	distURL string

	group   singleflight.Group
	mu      sync.Mutex
	flights map[materials.ArtifactKind]struct{}
	waiting atomic.Int64
}

func New(log *logger.Logger, fetcher Fetcher, baseURL string) (*Registry, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher required")
	}
	if log == nil {
		log = logger.Nop()
	}
	distURL, err := basepath.Join(baseURL, "dist")
	if err != nil {
		return nil, fmt.Errorf("dist url: %w", err)
	}
	return &Registry{
		log:     log.With("component", "FetchCache"),
		fetcher: fetcher,
		distURL: distURL,
		flights: make(map[materials.ArtifactKind]struct{}),
	}, nil
}

// URL is where kind is fetched from.
func (r *Registry) URL(kind materials.ArtifactKind) string {
	u, err := basepath.Join(r.distURL, string(kind))
	if err != nil {
		return r.distURL + "/" + string(kind)
	}
	return u
}

// Fetch returns the validated artifact, joining an in-flight request for
// the same kind if there is one. Decode and shape failures are reported the
// same way as transport failures.
//
// The shared request is detached from the first caller's cancellation; each
// caller still stops waiting when its own ctx is done.
func (r *Registry) Fetch(ctx context.Context, kind materials.ArtifactKind) (*Artifact, error) {
	r.waiting.Add(1)
	ch := r.group.DoChan(string(kind), func() (any, error) {
		r.track(kind, true)
		defer r.track(kind, false)
		return r.fetch(context.WithoutCancel(ctx), kind)
	})
	defer r.waiting.Add(-1)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("Failed to fetch %s: %w", kind, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.log.Debug("joined in-flight fetch", "artifact", kind)
		}
		return res.Val.(*Artifact), nil
	}
}

// Forget drops the in-flight entry for kind; the next Fetch starts a new
// request even if the old one has not settled.
func (r *Registry) Forget(kind materials.ArtifactKind) {
	r.group.Forget(string(kind))
}

// Clear forgets every artifact kind.
func (r *Registry) Clear() {
	for _, k := range materials.Artifacts {
		r.Forget(k)
	}
}

// InFlight is the number of artifact kinds with a request on the wire.
func (r *Registry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}

// Waiting is the number of callers currently blocked in Fetch.
func (r *Registry) Waiting() int {
	return int(r.waiting.Load())
}

func (r *Registry) track(kind materials.ArtifactKind, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on {
		r.flights[kind] = struct{}{}
	} else {
		delete(r.flights, kind)
	}
}

func (r *Registry) fetch(ctx context.Context, kind materials.ArtifactKind) (*Artifact, error) {
	url := r.URL(kind)
	r.log.Debug("fetching artifact", "artifact", kind, "url", url)

	resp, err := r.fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch %s: %w", kind, err)
	}
	res, err := validate.Artifact(kind, resp.Body)
	if err != nil {
		r.log.Warn("artifact rejected", "artifact", kind, "error", err)
		return nil, fmt.Errorf("Failed to fetch %s: %w", kind, err)
	}
	if res.Skipped > 0 {
		r.log.Warn("skipped undecodable entries", "artifact", kind, "skipped", res.Skipped)
	}
	r.log.Debug("artifact loaded", "artifact", kind, "bytes", len(resp.Body))
	return &Artifact{
		Result:       res,
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}, nil
}
