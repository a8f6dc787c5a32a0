package saga

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/planbuilder/internal/clock"
	"github.com/roach88/planbuilder/internal/notify"
)

// Engine is the single-writer loop that drives runs.
//
// Thread-safety model:
//   - Start, Reevaluate, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - run state is touched only inside Run
type Engine struct {
	queue  *eventQueue
	runs   map[string]*Run
	guard  *Guard
	tokens clock.TokenGenerator
	seq    *clock.Seq
	sink   notify.Sink
	actor  string

	callCtx     context.Context
	cancelCalls context.CancelFunc
	calls       sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenGenerator sets the run token source (default UUIDv7).
func WithTokenGenerator(g clock.TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithSink sets where terminal notifications go.
func WithSink(s notify.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithSeq shares a logical clock with other components.
func WithSeq(s *clock.Seq) Option {
	return func(e *Engine) { e.seq = s }
}

// WithActor stamps notifications with the acting user.
func WithActor(actor string) Option {
	return func(e *Engine) { e.actor = actor }
}

// NewEngine creates an engine. Call Run to start processing.
func NewEngine(opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		queue:       newEventQueue(),
		runs:        make(map[string]*Run),
		guard:       NewGuard(),
		tokens:      clock.UUIDv7Generator{},
		seq:         clock.NewSeq(),
		sink:        notify.Discard,
		callCtx:     ctx,
		cancelCalls: cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Guard exposes the submission guard for inspection.
func (e *Engine) Guard() *Guard {
	return e.guard
}

// Start assigns r a token and queues it for execution.
func (e *Engine) Start(r *Run) (string, error) {
	r.token = e.tokens.Generate()
	r.result.Token = r.token
	if !e.queue.Enqueue(Event{Type: EventStart, Token: r.token, Run: r}) {
		return "", ErrEngineStopped
	}
	e.queue.Enqueue(Event{Type: EventEvaluate, Token: r.token})
	return r.token, nil
}

// Reevaluate asks the loop to re-check a run. Redundant evaluations are
// harmless: the guard suppresses resubmission of an issued step.
func (e *Engine) Reevaluate(token string) bool {
	return e.queue.Enqueue(Event{Type: EventEvaluate, Token: token})
}

// Run processes events until ctx is cancelled or Stop is called. Runs that
// have not finished by then abort with ErrCodeStopped.
func (e *Engine) Run(ctx context.Context) error {
	slog.Debug("saga engine starting")
	defer e.shutdown()

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("saga engine stopping: context cancelled")
			return ctx.Err()
		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Debug("saga engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once it drains.
func (e *Engine) Stop() {
	e.queue.Close()
}

// shutdown aborts whatever is still running and waits for call goroutines.
func (e *Engine) shutdown() {
	e.queue.Close()
	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		if ev.Type == EventStart && ev.Run != nil {
			e.runs[ev.Token] = ev.Run
		}
	}
	for _, r := range e.runs {
		e.finish(r, Failed, &RunError{Code: ErrCodeStopped, Token: r.token})
	}
	e.cancelCalls()
	e.calls.Wait()
}

func (e *Engine) process(ev Event) {
	switch ev.Type {
	case EventStart:
		e.runs[ev.Token] = ev.Run
		slog.Info("saga run started", "run_token", ev.Token, "collection", ev.Run.collection, "steps", ev.Run.StepIDs())
	case EventEvaluate:
		e.evaluate(ev.Token)
	case EventCallBusy:
		e.callBusy(ev)
	case EventCallSettled:
		e.callSettled(ev)
	default:
		slog.Error("unknown saga event", "type", ev.Type, "run_token", ev.Token)
	}
}

// evaluate submits the current step if it has not been submitted yet.
func (e *Engine) evaluate(token string) {
	r := e.runs[token]
	if r == nil || r.terminal() {
		slog.Debug("evaluate for inactive run", "run_token", token)
		return
	}
	idx := r.cursor
	step := r.steps[idx]

	if e.guard.Submitted(token, step.ID) {
		slog.Debug("step already submitted", "run_token", token, "step", step.ID)
		return
	}
	e.guard.Mark(token, step.ID)

	call, err := step.Build(r.data)
	if err != nil {
		e.finish(r, Failed, &RunError{Code: ErrCodeBuildFailed, Token: token, Step: step.ID, Op: step.Op, Err: err})
		return
	}

	r.setState(submitted(idx))
	r.tracker = tracker{}
	slog.Info("saga step submitted", "run_token", token, "step", step.ID, "op", step.Op, "state", r.state)

	if call == nil {
		// Nothing to send: the step is trivially busy and settles at once.
		r.tracker.sawBusy = true
		e.queue.Enqueue(Event{Type: EventCallSettled, Token: token, Step: idx})
		return
	}

	e.calls.Add(1)
	go func() {
		defer e.calls.Done()
		e.queue.Enqueue(Event{Type: EventCallBusy, Token: token, Step: idx})
		err := call(e.callCtx)
		e.queue.Enqueue(Event{Type: EventCallSettled, Token: token, Step: idx, Err: err})
	}()
}

func (e *Engine) callBusy(ev Event) {
	r := e.runs[ev.Token]
	if r == nil || r.terminal() || ev.Step != r.cursor {
		return
	}
	r.tracker.busy = true
	r.tracker.sawBusy = true
}

func (e *Engine) callSettled(ev Event) {
	r := e.runs[ev.Token]
	if r == nil || r.terminal() || ev.Step != r.cursor {
		return
	}
	step := r.steps[r.cursor]
	if !r.tracker.sawBusy {
		slog.Warn("settle without busy ignored", "run_token", ev.Token, "step", step.ID)
		return
	}
	r.tracker.busy = false

	if ev.Err != nil {
		slog.Error("saga step failed", "run_token", ev.Token, "step", step.ID, "op", step.Op, "error", ev.Err)
		e.finish(r, Failed, &RunError{Code: ErrCodeStepFailed, Token: ev.Token, Step: step.ID, Op: step.Op, Err: ev.Err})
		return
	}

	if step.Confirm != nil {
		step.Confirm(r.data)
	}
	r.setState(confirmed(r.cursor))
	slog.Info("saga step confirmed", "run_token", ev.Token, "step", step.ID, "state", r.state)

	r.cursor++
	if r.cursor == len(r.steps) {
		e.finish(r, Succeeded, nil)
		return
	}
	e.queue.Enqueue(Event{Type: EventEvaluate, Token: ev.Token})
}

// finish moves r to a terminal state, clears its per-run tracking, publishes
// exactly one notification and wakes waiters.
func (e *Engine) finish(r *Run, outcome Outcome, err error) {
	if r.terminal() {
		return
	}
	r.outcome = outcome
	r.err = err
	if outcome == Failed {
		r.setState(Aborted)
	}
	r.tracker = tracker{}
	e.guard.Clear(r.token)
	delete(e.runs, r.token)

	ev := notify.Event{
		Kind:       notify.KindSuccess,
		Source:     r.source,
		Message:    r.successMessage,
		Collection: r.collection,
		Token:      r.token,
		Actor:      e.actor,
		Seq:        e.seq.Next(),
	}
	if outcome == Failed {
		ev.Kind = notify.KindFailure
		ev.Message = notify.MessageGenericFailure
		ev.Err = err
		slog.Error("saga run aborted", "run_token", r.token, "collection", r.collection, "error", err)
	} else {
		slog.Info("saga run succeeded", "run_token", r.token, "collection", r.collection)
	}

	r.result = Result{
		Token:   r.token,
		State:   r.state,
		Outcome: outcome,
		Err:     err,
		Data:    r.data.clone(),
		History: append([]State(nil), r.history...),
	}
	for _, f := range r.onDone {
		f(r.result)
	}
	e.sink.Publish(ev)
	close(r.done)
}
