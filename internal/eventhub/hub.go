// Package eventhub is the process-wide event registry: a map from session
// id to its set of subscribers, each fed a bounded channel so a slow
// subscriber never blocks the orchestrator publishing events for other
// sessions (or for this one). Shaped after the mutex-guarded state
// discipline of a managed, long-lived session object rather than a
// generic broker, since the only access pattern here is "fan out to
// whoever is currently subscribed to this session id".
package eventhub

import (
	"sync"
)

// Kind enumerates the event payload shapes the orchestrator publishes.
type Kind string

const (
	KindSessionStarted     Kind = "SessionStarted"
	KindSessionPaused      Kind = "SessionPaused"
	KindSessionStopped     Kind = "SessionStopped"
	KindSessionCompleted   Kind = "SessionCompleted"
	KindSessionError       Kind = "SessionError"
	KindIterationStarted   Kind = "IterationStarted"
	KindIterationCompleted Kind = "IterationCompleted"
	KindMessageStarted     Kind = "MessageStarted"
	KindMessageChunk       Kind = "MessageChunk"
	KindMessageCompleted   Kind = "MessageCompleted"
	KindPersonaMemoryReset Kind = "PersonaMemoryReset"
)

// Event is the payload published to every subscriber of a session. Fields
// not meaningful for a given Kind are left zero (e.g. Text is the chunk
// delta for MessageChunk and the full content for MessageCompleted).
type Event struct {
	Kind         Kind
	SessionID    string
	Iteration    int
	MessageID    string
	PersonaID    string
	Text         string
	Reason       string
	FinalContent string
}

// Subscriber is a single client's bounded view of one session's events.
type Subscriber struct {
	ch     chan Event
	once   sync.Once
}

// Events returns the channel to range over. It is closed on Unsubscribe.
func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub is the subscriber registry. The zero value is not usable; use New.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscriber]struct{}
	backlog     int
}

// New builds a Hub whose per-subscriber channel holds up to backlog
// events before further publishes to that subscriber are dropped.
func New(backlog int) *Hub {
	if backlog <= 0 {
		backlog = 32
	}
	return &Hub{subscribers: make(map[string]map[*Subscriber]struct{}), backlog: backlog}
}

// Subscribe joins sessionID's fan-out set. A subscriber that joins
// mid-session receives only events published after this call.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{ch: make(chan Event, h.backlog)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subscribers[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from sessionID's fan-out set and closes its
// channel. Safe to call more than once.
func (h *Hub) Unsubscribe(sessionID string, sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subscribers[sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish fans ev out to every current subscriber of ev.SessionID. A
// subscriber whose channel is full has this event dropped rather than
// blocking the caller — the orchestrator publishes on its own session
// task and must never stall on a slow websocket client.
//
// Callers must publish for a given session from a single goroutine (the
// orchestrator's per-session task) to preserve FIFO ordering; Publish
// itself does not reorder or buffer across calls.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	set := h.subscribers[ev.SessionID]
	subs := make([]*Subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
