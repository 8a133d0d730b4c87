// Package netstate tracks connectivity and, when it comes back, checks
// whether the published dataset changed while the catalog was offline.
package netstate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungbote/materialmap/internal/catalog/fetch"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/notify"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

// VersionStore remembers the validators of the last dataset seen.
type VersionStore interface {
	LoadValidators(ctx context.Context) (materials.Validators, error)
	SaveValidators(ctx context.Context, v materials.Validators) error
}

// Requester is the subset of fetch.Client the monitor needs.
type Requester interface {
	Do(ctx context.Context, method string, url string, maxRetries int) (*fetch.Response, error)
}

type Options struct {
	Log       *logger.Logger
	Initial   bool
	Requester Requester
	// VersionURL is HEAD-probed for Last-Modified/ETag on reconnect.
	VersionURL string
	Versions   VersionStore
	Publisher  notify.Publisher
}

type Monitor struct {
	log        *logger.Logger
	req        Requester
	versionURL string
	versions   VersionStore
	pub        notify.Publisher

	online   atomic.Bool
	checks   sync.WaitGroup
	checkSeq atomic.Int64
}

func New(opts Options) (*Monitor, error) {
	if opts.Requester == nil {
		return nil, fmt.Errorf("requester required")
	}
	if opts.Versions == nil {
		return nil, fmt.Errorf("version store required")
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	pub := opts.Publisher
	if pub == nil {
		pub = notify.Discard{}
	}
	m := &Monitor{
		log:        log.With("component", "NetState"),
		req:        opts.Requester,
		versionURL: opts.VersionURL,
		versions:   opts.Versions,
		pub:        pub,
	}
	m.online.Store(opts.Initial)
	return m, nil
}

// Online reports the last known connectivity.
func (m *Monitor) Online() bool { return m.online.Load() }

// SetOnline records a connectivity change. Going online starts an update
// check in the background; it never forces a reload.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	prev := m.online.Swap(online)
	if prev == online {
		return
	}
	if !online {
		m.log.Warn("connection lost")
		m.pub.Publish(notify.Event{Type: notify.EventOffline})
		return
	}

	m.log.Info("connection restored")
	m.pub.Publish(notify.Event{Type: notify.EventOnline})

	m.checks.Add(1)
	go func() {
		defer m.checks.Done()
		if _, err := m.CheckForUpdates(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn("update check failed", "error", err)
		}
	}()
}

// Wait blocks until background update checks have finished.
func (m *Monitor) Wait() { m.checks.Wait() }

// Checks is how many update checks reached the server.
func (m *Monitor) Checks() int64 { return m.checkSeq.Load() }

// CheckForUpdates compares the server's validators for the full dataset
// with the stored pair. A difference publishes EventUpdateAvailable and the
// new pair is stored. When nothing was stored yet the pair is recorded
// without a notification.
func (m *Monitor) CheckForUpdates(ctx context.Context) (bool, error) {
	if !m.Online() || m.versionURL == "" {
		return false, nil
	}
	m.checkSeq.Add(1)

	resp, err := m.req.Do(ctx, http.MethodHead, m.versionURL, 1)
	if err != nil {
		return false, fmt.Errorf("version probe: %w", err)
	}
	current := materials.Validators{
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}
	if current.IsZero() {
		m.log.Debug("server sent no validators", "url", m.versionURL)
		return false, nil
	}

	stored, err := m.versions.LoadValidators(ctx)
	if err != nil {
		return false, fmt.Errorf("load validators: %w", err)
	}
	if stored == current {
		return false, nil
	}
	if err := m.versions.SaveValidators(ctx, current); err != nil {
		return false, fmt.Errorf("save validators: %w", err)
	}
	if stored.IsZero() {
		return false, nil
	}

	m.log.Info("newer dataset available", "etag", current.ETag, "last_modified", current.LastModified)
	m.pub.Publish(notify.Event{
		Type: notify.EventUpdateAvailable,
		Data: map[string]any{
			"lastModified": current.LastModified,
			"etag":         current.ETag,
		},
	})
	return true, nil
}

// RunProbe polls url every interval and feeds the outcome to SetOnline.
// Any HTTP answer, including an error status, counts as reachable. It
// returns when ctx is done.
func (m *Monitor) RunProbe(ctx context.Context, url string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		ok := m.reachable(ctx, url)
		if ctx.Err() != nil {
			return
		}
		m.SetOnline(ctx, ok)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (m *Monitor) reachable(ctx context.Context, url string) bool {
	_, err := m.req.Do(ctx, http.MethodHead, url, 1)
	if err == nil {
		return true
	}
	var herr *fetch.HTTPError
	return errors.As(err, &herr)
}

// MemoryVersions is a process-local VersionStore.
type MemoryVersions struct {
	mu sync.Mutex
	v  materials.Validators
}

func (s *MemoryVersions) LoadValidators(context.Context) (materials.Validators, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v, nil
}

func (s *MemoryVersions) SaveValidators(_ context.Context, v materials.Validators) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
	return nil
}
