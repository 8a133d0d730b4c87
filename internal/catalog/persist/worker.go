// Package persist is the out-of-process dataset cache: a small worker that
// answers GET/PUT/CLEAR messages against a durable store (Redis or a SQL
// database), plus the bounded probe the fallback chain uses to ask it for a
// last known dataset.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

type MessageType string

const (
	MsgGetCachedMaterials MessageType = "GET_CACHED_MATERIALS"
	MsgPutCachedMaterials MessageType = "PUT_CACHED_MATERIALS"
	MsgClearCache         MessageType = "CLEAR_CACHE"
)

// ProbeTimeout bounds how long the fallback chain waits for the worker.
const ProbeTimeout = 5 * time.Second

var (
	ErrNotCached    = errors.New("no cached materials")
	ErrNoWorker     = errors.New("persistent worker not available")
	ErrProbeTimeout = errors.New("persistent worker did not answer in time")
)

type Request struct {
	Type MessageType        `json:"type"`
	Data *materials.Dataset `json:"data,omitempty"`
}

type Response struct {
	Success bool               `json:"success"`
	Data    *materials.Dataset `json:"data,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Port is a message channel to a worker.
type Port interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Store is the durable storage behind a Worker.
type Store interface {
	Get(ctx context.Context, key string) (*materials.Dataset, error)
	Put(ctx context.Context, key string, ds *materials.Dataset) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Worker struct {
	log   *logger.Logger
	store Store
}

func NewWorker(log *logger.Logger, store Store) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{log: log.With("component", "PersistWorker"), store: store}, nil
}

// Send handles req synchronously. Storage failures are reported in the
// Response, not as an error; err is only set for unknown message types.
func (w *Worker) Send(ctx context.Context, req Request) (Response, error) {
	switch req.Type {
	case MsgGetCachedMaterials:
		ds, err := w.store.Get(ctx, materials.CacheKey)
		if errors.Is(err, ErrNotCached) {
			return Response{Success: false}, nil
		}
		if err != nil {
			w.log.Warn("cached materials read failed", "error", err)
			return Response{Success: false, Error: err.Error()}, nil
		}
		return Response{Success: true, Data: ds}, nil

	case MsgPutCachedMaterials:
		if req.Data == nil {
			return Response{Success: false, Error: "no data"}, nil
		}
		if err := w.store.Put(ctx, materials.CacheKey, req.Data); err != nil {
			w.log.Warn("cached materials write failed", "error", err)
			return Response{Success: false, Error: err.Error()}, nil
		}
		w.log.Debug("cached materials stored", "materials", len(req.Data.Materials))
		return Response{Success: true}, nil

	case MsgClearCache:
		if err := w.store.Delete(ctx, materials.CacheKey); err != nil {
			w.log.Warn("cache clear failed", "error", err)
			return Response{Success: false, Error: err.Error()}, nil
		}
		w.log.Info("persistent cache cleared")
		return Response{Success: true}, nil

	default:
		return Response{}, fmt.Errorf("unknown message type %q", req.Type)
	}
}

func (w *Worker) Close() error { return w.store.Close() }

// Probe asks port for the cached dataset and gives up after timeout. An
// absent worker, a timeout and a negative answer all come back as errors
// matching ErrNotCached.
func Probe(ctx context.Context, port Port, timeout time.Duration) (*materials.Dataset, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCached, ErrNoWorker)
	}
	if timeout <= 0 {
		timeout = ProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := port.Send(ctx, Request{Type: MsgGetCachedMaterials})
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrNotCached, ErrProbeTimeout)
		}
		return nil, fmt.Errorf("%w: %w", ErrNotCached, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotCached, r.err)
		}
		if !r.resp.Success || r.resp.Data == nil {
			return nil, ErrNotCached
		}
		return r.resp.Data, nil
	}
}

// Save sends ds to the worker for storage.
func Save(ctx context.Context, port Port, ds *materials.Dataset) error {
	if port == nil {
		return ErrNoWorker
	}
	resp, err := port.Send(ctx, Request{Type: MsgPutCachedMaterials, Data: ds})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("persist dataset: %s", resp.Error)
	}
	return nil
}

// Clear asks the worker to drop its cached dataset.
func Clear(ctx context.Context, port Port) error {
	if port == nil {
		return ErrNoWorker
	}
	resp, err := port.Send(ctx, Request{Type: MsgClearCache})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("clear persistent cache: %s", resp.Error)
	}
	return nil
}
