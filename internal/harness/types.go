package harness

import "github.com/roach88/planbuilder/internal/ir"

// Trace event types.
const (
	EventGesture = "gesture"
	EventCall    = "call"
	EventRun     = "run"
	EventNotify  = "notify"
)

// TraceEvent is one observable step of a scenario: a gesture the scenario
// issued, a call that reached the remote store, a finished saga run or a
// published notification. Unused fields stay empty.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// gesture
	Gesture  string         `json:"gesture,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Rejected string         `json:"rejected,omitempty"`

	// call
	Op      string   `json:"op,omitempty"`
	ID      string   `json:"id,omitempty"`
	Items   []string `json:"items,omitempty"`
	Changes string   `json:"changes,omitempty"`

	// run
	Token   string   `json:"token,omitempty"`
	States  []string `json:"states,omitempty"`
	Outcome string   `json:"outcome,omitempty"`

	// call and run failures
	Error string `json:"error,omitempty"`

	// notify
	Kind    string `json:"kind,omitempty"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`
}

// FinalState is the collection as seen locally and remotely after the last
// step.
type FinalState struct {
	Local     ir.Snapshot  `json:"local"`
	Remote    ir.Snapshot  `json:"remote"`
	Aggregate ir.Aggregate `json:"aggregate"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists every event in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	Final FinalState `json:"final"`
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// add appends ev, stamping the next sequence number.
func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
