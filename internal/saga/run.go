package saga

import (
	"context"
	"fmt"

	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/remote"
)

// Call performs one remote mutation.
type Call func(ctx context.Context) error

// Step is one remote mutation of a run.
type Step struct {
	ID string
	Op remote.Op

	// Build produces the step's call from the data confirmed so far. It runs
	// on the loop exactly once per run, when the step is submitted. A nil
	// Call means the step has nothing to send and confirms immediately.
	Build func(data *CascadeData) (Call, error)

	// Confirm folds the step's confirmed effect into data. Optional.
	Confirm func(data *CascadeData)
}

// CascadeData is the state threaded through a run's steps. Each step reads
// what earlier steps confirmed and adds its own result.
type CascadeData struct {
	Collection string
	Aggregate  ir.Aggregate

	// Before is the local order when the run started; After is the order
	// the run establishes. Baseline is the last order the remote confirmed.
	Before   ir.Snapshot
	After    ir.Snapshot
	Baseline ir.Snapshot

	// Target is the fragment being deleted or inserted, at TargetIndex in
	// Before (delete) or After (insert).
	Target      ir.Item
	TargetIndex int

	// Reindex is the position batch the reindex step wrote.
	Reindex []ir.PendingUpdate

	// ParentChanges is the change set the parent update step wrote.
	ParentChanges ir.IRObject
}

func (d CascadeData) clone() CascadeData {
	out := d
	out.Before = d.Before.Clone()
	out.After = d.After.Clone()
	out.Baseline = d.Baseline.Clone()
	out.Target = d.Target.Clone()
	out.Reindex = append([]ir.PendingUpdate(nil), d.Reindex...)
	out.ParentChanges = d.ParentChanges.Clone()
	return out
}

// Result is the terminal snapshot of a run.
type Result struct {
	Token   string
	State   State
	Outcome Outcome
	Err     error
	Data    CascadeData
	History []State
}

// tracker follows the current step's remote call. Confirmation requires
// sawBusy: the call must have been observed in flight before it settles.
type tracker struct {
	busy    bool
	sawBusy bool
}

// Run is one execution of a cascading mutation. Everything except the
// constructor arguments is owned by the engine loop once started.
type Run struct {
	token          string
	collection     string
	source         notify.Source
	successMessage string
	steps          []Step
	data           *CascadeData

	cursor  int
	state   State
	outcome Outcome
	err     error
	tracker tracker
	history []State

	onDone []func(Result)
	done   chan struct{}
	result Result
}

// NewRun validates steps and builds a run. data may be nil.
func NewRun(collection string, source notify.Source, successMessage string, data *CascadeData, steps ...Step) (*Run, error) {
	if len(steps) == 0 || len(steps) > MaxSteps {
		return nil, fmt.Errorf("%w: %d steps (want 1..%d)", ErrInvalidRun, len(steps), MaxSteps)
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.ID == "" || s.Build == nil {
			return nil, fmt.Errorf("%w: step %d needs an id and a build func", ErrInvalidRun, i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate step id %q", ErrInvalidRun, s.ID)
		}
		seen[s.ID] = true
	}
	if data == nil {
		data = &CascadeData{}
	}
	if data.Collection == "" {
		data.Collection = collection
	}
	return &Run{
		collection:     collection,
		source:         source,
		successMessage: successMessage,
		steps:          append([]Step(nil), steps...),
		data:           data,
		state:          Idle,
		history:        []State{Idle},
		done:           make(chan struct{}),
	}, nil
}

// OnDone registers f to run on the engine loop when the run terminates.
// Must be called before the run is started.
func (r *Run) OnDone(f func(Result)) {
	r.onDone = append(r.onDone, f)
}

// StepIDs returns the step ids in order.
func (r *Run) StepIDs() []string {
	ids := make([]string, len(r.steps))
	for i, s := range r.steps {
		ids[i] = s.ID
	}
	return ids
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the terminal result. Only valid after Done is closed.
func (r *Run) Result() Result {
	<-r.done
	return r.result
}

// Wait blocks until the run terminates or ctx ends.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Run) setState(s State) {
	r.state = s
	r.history = append(r.history, s)
}

func (r *Run) terminal() bool {
	return r.outcome != Pending
}
