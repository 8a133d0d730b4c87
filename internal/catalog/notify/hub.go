// Package notify delivers fire-and-forget catalog events (progressive load
// phases, update availability, connectivity changes) to interested
// collaborators. Publishing never blocks on slow or absent consumers.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/materialmap/internal/platform/logger"
)

type EventType string

const (
	EventProgressiveLoad EventType = "materialsProgressiveLoad"
	EventDataUpdated     EventType = "materialsDataUpdate"
	EventUpdateAvailable EventType = "materialsUpdateAvailable"
	EventOnline          EventType = "online"
	EventOffline         EventType = "offline"
	EventLoadFailed      EventType = "materialsLoadFailed"
)

type Event struct {
	Type  EventType `json:"type"`
	Phase string    `json:"phase,omitempty"`
	Data  any       `json:"data,omitempty"`
	At    time.Time `json:"at"`
}

// Publisher is what the loader core depends on.
type Publisher interface {
	Publish(ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

type Subscription struct {
	ID     uuid.UUID
	types  map[EventType]bool
	events chan Event
	hub    *Hub
	once   sync.Once
}

// C delivers events. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.events }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.events)
	})
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

type Hub struct {
	mu     sync.RWMutex
	logger *logger.Logger
	subs   map[*Subscription]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		logger: log.With("component", "NotifyHub"),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a consumer for the given event types (all types when
// none are given). buffer bounds how many undelivered events are kept.
func (h *Hub) Subscribe(buffer int, types ...EventType) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	s := &Subscription{
		ID:     uuid.New(),
		types:  make(map[EventType]bool, len(types)),
		events: make(chan Event, buffer),
		hub:    h,
	}
	for _, t := range types {
		s.types[t] = true
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "subscription", s.ID, "types", types)
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.events <- ev:
		default:
			h.logger.Warn("dropping event; subscriber buffer full", "subscription", s.ID, "event", ev.Type)
		}
	}
}

// Subscribers is the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
