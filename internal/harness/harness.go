package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/planbuilder/internal/clock"
	"github.com/roach88/planbuilder/internal/editor"
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/reconcile"
	"github.com/roach88/planbuilder/internal/remote"
	"github.com/roach88/planbuilder/internal/saga"
	"github.com/roach88/planbuilder/internal/sequence"
	"github.com/roach88/planbuilder/internal/testutil"
)

// runTimeout bounds how long a step waits for a saga run.
const runTimeout = 10 * time.Second

// errorNames maps expect_error names to the errors gestures return.
var errorNames = map[string]error{
	"cascade_pending":    editor.ErrCascadePending,
	"index_out_of_range": sequence.ErrIndexOutOfRange,
	"item_not_found":     sequence.ErrItemNotFound,
	"not_permutation":    sequence.ErrNotPermutation,
}

func errorName(err error) string {
	for name, target := range errorNames {
		if errors.Is(err, target) {
			return name
		}
	}
	return err.Error()
}

// Harness runs one scenario against an in-memory remote store, a manual
// clock and fixed run tokens, so every run of a scenario produces the same
// trace.
type Harness struct {
	mem    *remote.Memory
	faulty *remote.Faulty
	clock  *testutil.ManualClock
	sink   *notify.Recorder
	engine *saga.Engine
	editor *editor.Editor
	logger *slog.Logger

	calls int // faulty calls already traced
	notes int // notifications already traced
}

// Run executes a scenario and evaluates its assertions.
//
// Execution flow:
//  1. Seed an in-memory store and wrap it with the configured faults
//  2. Start a saga engine and load the collection into an editor
//  3. Execute steps; runs started by a step are awaited before the next
//  4. Capture the final local and remote state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		mem:    remote.NewMemory(),
		clock:  testutil.NewManualClock(),
		sink:   &notify.Recorder{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.seed(scenario.Collection)
	h.faulty = remote.NewFaulty(h.mem)
	for _, f := range scenario.Faults {
		op := remote.Op(f.Op)
		code := remote.ErrorCode(f.Code)
		if code == "" {
			code = remote.CodeUnavailable
		}
		h.faulty.FailNth(op, f.Nth, remote.NewError(code, op, "", remote.ErrInjected))
	}

	seq := clock.NewSeq()
	h.engine = saga.NewEngine(
		saga.WithTokenGenerator(clock.NewFixedGenerator(runTokens(scenario)...)),
		saga.WithSink(h.sink),
		saga.WithSeq(seq),
		saga.WithActor("harness"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = h.engine.Run(ctx)
	}()
	defer func() {
		cancel()
		<-engineDone
	}()

	quiet := reconcile.DefaultQuietPeriod
	if scenario.QuietPeriod != "" {
		quiet, _ = time.ParseDuration(scenario.QuietPeriod)
	}
	ed, err := editor.New(editor.Options{
		Collection:  scenario.Collection.ID,
		Backend:     h.faulty,
		Engine:      h.engine,
		Clock:       h.clock,
		QuietPeriod: quiet,
		Sink:        h.sink,
		Seq:         seq,
		Actor:       "harness",
	})
	if err != nil {
		return nil, err
	}
	defer ed.Close()
	h.editor = ed
	if err := ed.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	agg, items, err := h.mem.LoadCollection(ctx, scenario.Collection.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.Final = FinalState{
		Local:     ed.Snapshot(),
		Remote:    items,
		Aggregate: agg,
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func runTokens(s *Scenario) []string {
	if len(s.RunTokens) > 0 {
		return s.RunTokens
	}
	var tokens []string
	for _, step := range s.Steps {
		if step.Delete != "" || step.Insert != nil {
			tokens = append(tokens, fmt.Sprintf("run-%d", len(tokens)+1))
		}
	}
	return tokens
}

func (h *Harness) seed(s Seed) {
	items := testutil.Items(s.Items...)
	agg := testutil.Plan(s.ID, items)
	if s.Kind != "" {
		agg.Kind = ir.CollectionKind(s.Kind)
	}
	switch {
	case s.NoThumbnail:
		agg.Thumbnail = nil
	case s.Thumbnail != nil:
		agg.Thumbnail = ir.StringPtr(*s.Thumbnail)
	}
	h.mem.Seed(agg, items)
}

// executeStep runs one step and traces everything it caused.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	gesture := TraceEvent{Type: EventGesture}
	var (
		run *saga.Run
		err error
	)

	switch {
	case step.Move != nil:
		gesture.Gesture = "move"
		gesture.Args = map[string]any{"from": step.Move.From, "to": step.Move.To}
		err = h.editor.Move(step.Move.From, step.Move.To)
	case step.Reorder != nil:
		gesture.Gesture = "reorder"
		ids := make([]any, len(step.Reorder))
		for i, id := range step.Reorder {
			ids[i] = id
		}
		gesture.Args = map[string]any{"ids": ids}
		err = h.editor.Reorder(step.Reorder)
	case step.Delete != "":
		gesture.Gesture = "delete"
		gesture.Args = map[string]any{"id": step.Delete}
		run, err = h.editor.Delete(ctx, step.Delete)
	case step.Insert != nil:
		gesture.Gesture = "insert"
		payload, convErr := ir.ObjectFromGo(step.Insert)
		if convErr != nil {
			return fmt.Errorf("insert payload: %w", convErr)
		}
		gesture.Args = step.Insert
		run, err = h.editor.Insert(ctx, payload)
	case step.Advance != "":
		gesture.Gesture = "advance"
		gesture.Args = map[string]any{"duration": step.Advance}
		d, _ := time.ParseDuration(step.Advance)
		h.clock.Advance(d)
	case step.Flush:
		gesture.Gesture = "flush"
		err = h.editor.Flush(ctx)
	case step.Refresh:
		gesture.Gesture = "refresh"
		err = h.editor.Refresh(ctx)
	}

	switch {
	case err != nil && step.ExpectError != "":
		gesture.Rejected = errorName(err)
		if !errors.Is(err, errorNames[step.ExpectError]) {
			result.AddError(fmt.Sprintf("steps[%d]: expected %s, got %v", index, step.ExpectError, err))
		}
	case err != nil && (step.Flush || step.Advance != ""):
		// write failures surface through the trace and notifications
	case err != nil:
		gesture.Rejected = errorName(err)
		result.AddError(fmt.Sprintf("steps[%d]: %s rejected: %v", index, gesture.Gesture, err))
	case step.ExpectError != "":
		result.AddError(fmt.Sprintf("steps[%d]: expected %s, got success", index, step.ExpectError))
	}
	result.add(gesture)

	var res saga.Result
	if run != nil {
		waitCtx, cancel := context.WithTimeout(ctx, runTimeout)
		res, err = run.Wait(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("waiting for run: %w", err)
		}
	}

	h.traceCalls(result)
	if run != nil {
		h.traceRun(result, res)
	}
	h.traceNotifications(result)

	if step.ExpectLocal != nil {
		got := h.editor.Snapshot().IDs()
		if !slices.Equal(got, step.ExpectLocal) {
			result.AddError(fmt.Sprintf("steps[%d]: local order %v, want %v", index, got, step.ExpectLocal))
		}
	}

	h.logger.Info("step completed",
		"step", index,
		"gesture", gesture.Gesture,
		"rejected", gesture.Rejected,
	)
	return nil
}

func (h *Harness) traceCalls(result *Result) {
	calls := h.faulty.Calls()
	for _, c := range calls[h.calls:] {
		result.add(TraceEvent{
			Type:    EventCall,
			Op:      string(c.Op),
			ID:      c.ID,
			Items:   c.Items,
			Changes: c.Changes,
			Error:   c.Err,
		})
	}
	h.calls = len(calls)
}

func (h *Harness) traceRun(result *Result, res saga.Result) {
	states := make([]string, len(res.History))
	for i, s := range res.History {
		states[i] = s.String()
	}
	ev := TraceEvent{
		Type:    EventRun,
		Token:   res.Token,
		States:  states,
		Outcome: res.Outcome.String(),
	}
	var re *saga.RunError
	if errors.As(res.Err, &re) {
		ev.Error = string(re.Code)
	}
	result.add(ev)
}

func (h *Harness) traceNotifications(result *Result) {
	events := h.sink.Events()
	for _, n := range events[h.notes:] {
		result.add(TraceEvent{
			Type:    EventNotify,
			Kind:    string(n.Kind),
			Source:  string(n.Source),
			Message: n.Message,
			Token:   n.Token,
		})
	}
	h.notes = len(events)
}
