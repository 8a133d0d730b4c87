package netstate

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/materialmap/internal/catalog/fetch"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/notify"
)

type fakeRequester struct {
	mu    sync.Mutex
	etag  string
	down  atomic.Bool
	calls atomic.Int32
}

func (f *fakeRequester) setETag(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.etag = v
}

func (f *fakeRequester) Do(_ context.Context, method string, url string, _ int) (*fetch.Response, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, &fetch.NetworkError{URL: url, Attempts: 1, Err: context.DeadlineExceeded}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h := http.Header{}
	if f.etag != "" {
		h.Set("ETag", f.etag)
		h.Set("Last-Modified", "Mon, 02 Jun 2025 10:00:00 GMT")
	}
	return &fetch.Response{URL: url, StatusCode: http.StatusOK, Header: h}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newMonitor(t *testing.T, initial bool, req *fakeRequester, versions VersionStore, pub notify.Publisher) *Monitor {
	t.Helper()
	m, err := New(Options{
		Initial:    initial,
		Requester:  req,
		VersionURL: "https://catalog.example.org/dist/materials.json",
		Versions:   versions,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestSetOnlineTransitions(t *testing.T) {
	req := &fakeRequester{}
	rec := &recorder{}
	m := newMonitor(t, true, req, &MemoryVersions{}, rec)

	m.SetOnline(context.Background(), true)
	m.SetOnline(context.Background(), false)
	m.SetOnline(context.Background(), false)
	if m.Online() {
		t.Fatalf("expected offline")
	}
	m.SetOnline(context.Background(), true)
	m.Wait()

	got := rec.types()
	if len(got) != 2 || got[0] != notify.EventOffline || got[1] != notify.EventOnline {
		t.Fatalf("events=%v", got)
	}
	if m.Checks() != 1 {
		t.Fatalf("update checks=%d want 1", m.Checks())
	}
}

func TestCheckForUpdatesDetectsChange(t *testing.T) {
	req := &fakeRequester{etag: `"v1"`}
	rec := &recorder{}
	versions := &MemoryVersions{}
	m := newMonitor(t, true, req, versions, rec)
	ctx := context.Background()

	changed, err := m.CheckForUpdates(ctx)
	if err != nil || changed {
		t.Fatalf("first observation: changed=%v err=%v", changed, err)
	}
	if v, _ := versions.LoadValidators(ctx); v.ETag != `"v1"` {
		t.Fatalf("first pair not stored: %+v", v)
	}

	changed, err = m.CheckForUpdates(ctx)
	if err != nil || changed {
		t.Fatalf("unchanged: changed=%v err=%v", changed, err)
	}

	req.setETag(`"v2"`)
	changed, err = m.CheckForUpdates(ctx)
	if err != nil || !changed {
		t.Fatalf("changed: changed=%v err=%v", changed, err)
	}
	got := rec.types()
	if len(got) != 1 || got[0] != notify.EventUpdateAvailable {
		t.Fatalf("events=%v", got)
	}
	if v, _ := versions.LoadValidators(ctx); v.ETag != `"v2"` {
		t.Fatalf("new pair not stored: %+v", v)
	}
}

func TestCheckForUpdatesSkippedWhileOffline(t *testing.T) {
	req := &fakeRequester{etag: `"v1"`}
	m := newMonitor(t, false, req, &MemoryVersions{}, nil)
	if changed, err := m.CheckForUpdates(context.Background()); err != nil || changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if req.calls.Load() != 0 {
		t.Fatalf("probed while offline")
	}
}

func TestCheckForUpdatesAfterReconnect(t *testing.T) {
	req := &fakeRequester{etag: `"v2"`}
	rec := &recorder{}
	versions := &MemoryVersions{}
	_ = versions.SaveValidators(context.Background(), materials.Validators{ETag: `"v1"`, LastModified: "Sun, 01 Jun 2025 10:00:00 GMT"})
	m := newMonitor(t, false, req, versions, rec)

	m.SetOnline(context.Background(), true)
	m.Wait()

	got := rec.types()
	if len(got) != 2 || got[0] != notify.EventOnline || got[1] != notify.EventUpdateAvailable {
		t.Fatalf("events=%v", got)
	}
}

func TestRunProbeFeedsConnectivity(t *testing.T) {
	req := &fakeRequester{}
	req.down.Store(true)
	rec := &recorder{}
	m := newMonitor(t, true, req, &MemoryVersions{}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunProbe(ctx, "https://catalog.example.org/", 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.Online() {
		if time.Now().After(deadline) {
			t.Fatalf("monitor never went offline")
		}
		time.Sleep(time.Millisecond)
	}
	req.down.Store(false)
	for !m.Online() {
		if time.Now().After(deadline) {
			t.Fatalf("monitor never came back online")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	m.Wait()
}
