// Package notify carries the user-facing outcome of background work: one
// event per settled reorder cycle that wrote something, per finished cascade
// run and per insert. Presentation (toasts, CLI output) subscribes through a
// Sink.
package notify

import (
	"log/slog"
	"sync"
)

// Kind is the outcome class of an event.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Source names the pipeline that produced an event.
type Source string

const (
	SourceReorder       Source = "reorder"
	SourceCascadeDelete Source = "cascade-delete"
	SourceInsert        Source = "insert"
)

// Messages shown to the user. Failures are deliberately generic.
const (
	MessageReorderSaved   = "Order saved"
	MessageItemDeleted    = "Fragment removed"
	MessageItemAdded      = "Fragment added"
	MessageGenericFailure = "Something went wrong. Please try again."
)

// Event is one terminal outcome.
type Event struct {
	Kind       Kind   `json:"kind"`
	Source     Source `json:"source"`
	Message    string `json:"message"`
	Collection string `json:"collection"`
	Token      string `json:"token,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Seq        int64  `json:"seq"`
	Err        error  `json:"-"`
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(ev).
func (f SinkFunc) Publish(ev Event) {
	f(ev)
}

// Discard drops everything.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every sink in order.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ev)
		}
	}
}

// Channel delivers events on a buffered channel. When the buffer is full the
// newest event is dropped and counted; the pipeline never waits on a slow
// reader.
type Channel struct {
	ch      chan Event
	mu      sync.Mutex
	dropped int
}

// NewChannel creates a channel sink with the given buffer size.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan Event, size)}
}

// Publish implements Sink.
func (c *Channel) Publish(ev Event) {
	select {
	case c.ch <- ev:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		slog.Warn("notification dropped", "source", ev.Source, "kind", ev.Kind)
	}
}

// C returns the receive side.
func (c *Channel) C() <-chan Event {
	return c.ch
}

// Dropped returns how many events were discarded.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Logger writes events to a slog logger.
type Logger struct {
	L *slog.Logger
}

// Publish implements Sink.
func (l Logger) Publish(ev Event) {
	logger := l.L
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"source", ev.Source,
		"collection", ev.Collection,
		"seq", ev.Seq,
	}
	if ev.Token != "" {
		attrs = append(attrs, "run_token", ev.Token)
	}
	if ev.Actor != "" {
		attrs = append(attrs, "actor", ev.Actor)
	}
	if ev.Kind == KindFailure {
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		logger.Error(ev.Message, attrs...)
		return
	}
	logger.Info(ev.Message, attrs...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind k came from src.
func (r *Recorder) Count(src Source, k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Source == src && ev.Kind == k {
			n++
		}
	}
	return n
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
