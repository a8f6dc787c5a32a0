// Package editor is the owning component of one collection: it holds the
// local order, turns gestures into optimistic edits and hands them to the
// reconciliation scheduler (reorders) or the saga engine (deletes, inserts).
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/planbuilder/internal/clock"
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/reconcile"
	"github.com/roach88/planbuilder/internal/remote"
	"github.com/roach88/planbuilder/internal/saga"
	"github.com/roach88/planbuilder/internal/sequence"
)

var (
	// ErrCascadePending rejects gestures while a delete or insert runs.
	ErrCascadePending = errors.New("editor: a cascading change is still running")

	// ErrNotLoaded is returned by gestures issued before Load.
	ErrNotLoaded = errors.New("editor: collection not loaded")
)

// View is what presentation renders.
type View struct {
	Snapshot        ir.Snapshot  `json:"items"`
	Aggregate       ir.Aggregate `json:"aggregate"`
	MutationPending bool         `json:"mutation_pending"`
	CascadePending  bool         `json:"cascade_pending"`
}

// Options configures an Editor. Collection, Backend and Engine are required.
type Options struct {
	Collection  string
	Backend     remote.Backend
	Engine      *saga.Engine
	Clock       clock.Clock
	QuietPeriod time.Duration
	Sink        notify.Sink
	Seq         *clock.Seq

	// Actor is the authenticated user; it is stamped on notifications.
	Actor string
}

// Editor edits one collection. Safe for concurrent use.
type Editor struct {
	opts  Options
	sched *reconcile.Scheduler

	mu      sync.Mutex
	model   *sequence.Model
	agg     ir.Aggregate
	loaded  bool
	cascade *saga.Run
	subs    map[int]func(View)
	nextSub int
}

// New creates an editor. Call Load before issuing gestures.
func New(opts Options) (*Editor, error) {
	if opts.Collection == "" {
		return nil, errors.New("editor: collection id required")
	}
	if opts.Backend == nil || opts.Engine == nil {
		return nil, errors.New("editor: backend and engine required")
	}
	if opts.Sink == nil {
		opts.Sink = notify.Discard
	}
	if opts.Seq == nil {
		opts.Seq = clock.NewSeq()
	}

	e := &Editor{
		opts:  opts,
		model: sequence.New(nil),
		subs:  make(map[int]func(View)),
	}
	e.sched = reconcile.New(reconcile.Options{
		Collection:      opts.Collection,
		QuietPeriod:     opts.QuietPeriod,
		Clock:           opts.Clock,
		Store:           opts.Backend,
		Local:           e.Snapshot,
		Sink:            opts.Sink,
		Seq:             opts.Seq,
		Actor:           opts.Actor,
		OnFailure:       e.revertReorder,
		OnPendingChange: func(bool) { e.emit() },
	}, nil)
	return e, nil
}

// Load fetches the collection and replaces local state with it. A pending
// reorder cycle is abandoned.
func (e *Editor) Load(ctx context.Context) error {
	agg, items, err := e.opts.Backend.LoadCollection(ctx, e.opts.Collection)
	if err != nil {
		return fmt.Errorf("load collection %s: %w", e.opts.Collection, err)
	}
	e.sched.Cancel()

	e.mu.Lock()
	e.model.ReplaceAll(items)
	e.agg = agg
	e.loaded = true
	e.mu.Unlock()

	// The baseline keeps the fetched positions so the next diff rewrites
	// any gap an aborted cascade left behind.
	e.sched.Reset(items)
	slog.Debug("collection loaded", "collection", e.opts.Collection, "items", len(items))
	if err := items.Validate(); errors.Is(err, ir.ErrNotDense) {
		slog.Info("remote positions not dense, scheduling repair", "collection", e.opts.Collection, "error", err)
		e.sched.Notify()
	}
	e.emit()
	return nil
}

// Refresh re-fetches after an aborted cascade left local state behind the
// remote.
func (e *Editor) Refresh(ctx context.Context) error {
	e.mu.Lock()
	busy := e.cascade != nil
	e.mu.Unlock()
	if busy {
		return ErrCascadePending
	}
	return e.Load(ctx)
}

// Snapshot returns the local order.
func (e *Editor) Snapshot() ir.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Snapshot()
}

// Aggregate returns the parent record as last confirmed.
func (e *Editor) Aggregate() ir.Aggregate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg
}

// View returns the current view.
func (e *Editor) View() View {
	e.mu.Lock()
	v := View{
		Snapshot:       e.model.Snapshot(),
		Aggregate:      e.agg,
		CascadePending: e.cascade != nil,
	}
	e.mu.Unlock()
	v.MutationPending = e.sched.MutationPending()
	return v
}

// Subscribe registers f to receive a view after every change. The returned
// func unsubscribes.
func (e *Editor) Subscribe(f func(View)) (cancel func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = f
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Editor) emit() {
	e.mu.Lock()
	subs := make([]func(View), 0, len(e.subs))
	for _, f := range e.subs {
		subs = append(subs, f)
	}
	e.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	v := e.View()
	for _, f := range subs {
		f(v)
	}
}

// Move applies a drag from index from to index to and schedules a write.
func (e *Editor) Move(from, to int) error {
	return e.reorderGesture(func(m *sequence.Model) error { return m.Move(from, to) })
}

// Reorder applies a complete new order in one gesture.
func (e *Editor) Reorder(ids []string) error {
	return e.reorderGesture(func(m *sequence.Model) error { return m.Reorder(ids) })
}

func (e *Editor) reorderGesture(apply func(*sequence.Model) error) error {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := apply(e.model); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.sched.Notify()
	e.emit()
	return nil
}

func (e *Editor) readyLocked() error {
	if !e.loaded {
		return ErrNotLoaded
	}
	if e.cascade != nil {
		return ErrCascadePending
	}
	return nil
}

// revertReorder restores the last confirmed order after a failed batch.
func (e *Editor) revertReorder(err error) {
	confirmed := e.sched.LastKnownRemote()
	e.mu.Lock()
	if e.cascade != nil {
		// the running cascade owns local state until it settles
		e.mu.Unlock()
		slog.Warn("reorder failed during cascade", "collection", e.opts.Collection, "error", err)
		return
	}
	e.model.ReplaceAll(confirmed)
	e.mu.Unlock()
	slog.Warn("reorder reverted", "collection", e.opts.Collection, "error", err)
	e.emit()
}

// Flush writes a pending reorder now.
func (e *Editor) Flush(ctx context.Context) error {
	return e.sched.Flush(ctx)
}

// Delete removes id optimistically and starts the cascade that deletes it
// remotely. Reorder gestures are rejected until the returned run finishes.
func (e *Editor) Delete(ctx context.Context, id string) (*saga.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	err := e.readyLocked()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// Unwritten moves travel with the reindex step; a write already in
	// flight must settle first so the baseline below is current.
	if err := e.sched.Quiesce(ctx); err != nil {
		return nil, fmt.Errorf("delete %s: %w", id, err)
	}

	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	local := e.model.Snapshot()
	if local.IndexOf(id) < 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("delete %s: %w", id, sequence.ErrItemNotFound)
	}
	run, err := saga.NewCascadeDelete(saga.CascadeDeleteInput{
		Store:     e.opts.Backend,
		Aggregate: e.agg,
		Local:     local,
		Baseline:  e.sched.LastKnownRemote(),
		ItemID:    id,
	})
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if _, _, err := e.model.Remove(id); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.cascade = run
	e.mu.Unlock()

	// drop a cycle armed between Quiesce and the cascade claim
	e.sched.Cancel()

	run.OnDone(e.deleteDone)
	if err := e.start(run, local); err != nil {
		return nil, err
	}
	return run, nil
}

func (e *Editor) deleteDone(res saga.Result) {
	e.mu.Lock()
	e.cascade = nil
	switch res.Outcome {
	case saga.Succeeded:
		e.agg = res.Data.Aggregate
		e.mu.Unlock()
		e.sched.Reset(res.Data.After)
	default:
		e.model.ReplaceAll(e.sched.LastKnownRemote())
		e.mu.Unlock()
	}
	e.emit()
}

// Insert creates a fragment at the end of the collection. The fragment is
// shown locally only once the remote confirmed it. A pending reorder is
// written first.
func (e *Editor) Insert(ctx context.Context, payload ir.IRObject) (*saga.Run, error) {
	if err := e.sched.Flush(ctx); err != nil {
		return nil, fmt.Errorf("insert: flush pending reorder: %w", err)
	}

	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	local := e.model.Snapshot()
	run, err := saga.NewCascadeInsert(saga.CascadeInsertInput{
		Store:     e.opts.Backend,
		Aggregate: e.agg,
		Local:     local,
		Payload:   payload,
	})
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.cascade = run
	e.mu.Unlock()

	run.OnDone(e.insertDone)
	if err := e.start(run, local); err != nil {
		return nil, err
	}
	return run, nil
}

func (e *Editor) insertDone(res saga.Result) {
	e.mu.Lock()
	e.cascade = nil
	if res.Outcome != saga.Succeeded {
		e.mu.Unlock()
		e.emit()
		return
	}
	e.agg = res.Data.Aggregate
	e.model.ReplaceAll(res.Data.After)
	e.mu.Unlock()
	e.sched.Reset(res.Data.After)
	e.emit()
}

// start hands run to the engine, undoing the optimistic edit if the engine
// is gone.
func (e *Editor) start(run *saga.Run, local ir.Snapshot) error {
	token, err := e.opts.Engine.Start(run)
	if err != nil {
		e.mu.Lock()
		e.cascade = nil
		e.model.ReplaceAll(local)
		e.mu.Unlock()
		e.emit()
		return err
	}
	slog.Debug("cascade queued", "collection", e.opts.Collection, "run_token", token)
	e.emit()
	return nil
}

// Close abandons pending work. Runs already handed to the engine finish or
// abort with the engine.
func (e *Editor) Close() {
	e.sched.Close()
	e.mu.Lock()
	clear(e.subs)
	e.mu.Unlock()
}
