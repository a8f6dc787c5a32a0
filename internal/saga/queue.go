package saga

import "sync"

// EventType distinguishes loop events.
type EventType int

const (
	// EventStart registers a new run.
	EventStart EventType = iota + 1
	// EventEvaluate asks the loop to advance a run if it can.
	EventEvaluate
	// EventCallBusy reports that a step's remote call is in flight.
	EventCallBusy
	// EventCallSettled reports that a step's remote call finished.
	EventCallSettled
)

// String returns the event type's name.
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventEvaluate:
		return "evaluate"
	case EventCallBusy:
		return "call-busy"
	case EventCallSettled:
		return "call-settled"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the loop.
type Event struct {
	Type  EventType
	Token string
	Step  int
	Err   error
	Run   *Run
}

// eventQueue is an unbounded FIFO. Enqueue is safe from any goroutine; the
// loop drains it with TryDequeue and sleeps on Wait.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking: the size-1 buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events[0] = Event{} // release the *Run for GC
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available. It is
// closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes the loop.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
