// Package reconcile turns bursts of local reorder gestures into single
// batch writes against the remote store.
//
// Every gesture calls Notify, which (re)arms a quiet-period timer. When the
// timer fires the scheduler captures the current local order, diffs it
// against the last order the remote confirmed, and issues one BatchWrite.
// At most one write is in flight; gestures that arrive meanwhile are picked
// up by a follow-up cycle armed when the write settles.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/planbuilder/internal/clock"
	"github.com/roach88/planbuilder/internal/diff"
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/remote"
)

// DefaultQuietPeriod is the debounce window used when none is configured.
const DefaultQuietPeriod = 2 * time.Second

// Options configures a Scheduler. Store and Local are required.
type Options struct {
	Collection  string
	QuietPeriod time.Duration
	Clock       clock.Clock
	Store       remote.Store

	// Local returns the current local order. Called once per cycle, when
	// the timer fires, never earlier.
	Local func() ir.Snapshot

	Sink  notify.Sink
	Seq   *clock.Seq
	Actor string

	// OnFailure runs after a failed batch write, before the failure
	// notification is published. The editor uses it to revert local state.
	OnFailure func(err error)

	// OnPendingChange reports transitions of MutationPending.
	OnPendingChange func(pending bool)
}

// Scheduler debounces reorder gestures into batch writes.
//
// Thread-safety: all methods are safe for concurrent use. Timer callbacks
// arrive on their own goroutine; writes are strictly serialized.
type Scheduler struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	timer      clock.Timer
	gen        uint64
	epoch      uint64
	pending    bool
	running    bool
	closed     bool
	lastRemote ir.Snapshot
	idle       chan struct{}
	reported   bool
}

// New creates a scheduler whose last-known-remote order is initial.
func New(opts Options, initial ir.Snapshot) *Scheduler {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Sink == nil {
		opts.Sink = notify.Discard
	}
	if opts.Seq == nil {
		opts.Seq = clock.NewSeq()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		lastRemote: initial.Clone(),
		idle:       idle,
	}
}

// Notify records that local order changed and restarts the quiet period.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.armLocked()
	s.mu.Unlock()

	slog.Debug("reconcile armed", "collection", s.opts.Collection, "quiet_period", s.opts.QuietPeriod)
	s.reportPending()
}

// MutationPending reports whether a reorder has been notified and its
// cycle has not settled yet.
func (s *Scheduler) MutationPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending || s.running
}

// LastKnownRemote returns the last order the remote store confirmed.
func (s *Scheduler) LastKnownRemote() ir.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRemote.Clone()
}

// Reset installs a freshly confirmed remote order (after a load or a
// completed cascade). A write in flight at the time of the call no longer
// updates last-known-remote when it settles.
func (s *Scheduler) Reset(confirmed ir.Snapshot) {
	s.mu.Lock()
	s.lastRemote = confirmed.Clone()
	s.epoch++
	s.mu.Unlock()
}

// Cancel drops a pending, not yet started cycle. Used when another writer
// will carry the local order, so the debounced write would be redundant.
// A write already in flight is not affected.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.pending = false
	s.stopLocked()
	s.mu.Unlock()
	s.reportPending()
}

// Quiesce drops a pending cycle like Cancel and then waits for a write in
// flight to settle, so LastKnownRemote is current when it returns nil.
func (s *Scheduler) Quiesce(ctx context.Context) error {
	defer s.reportPending()
	for {
		s.mu.Lock()
		s.pending = false
		s.stopLocked()
		if !s.running {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Flush runs the pending cycle now instead of waiting for the timer. If a
// write is in flight it waits for it first. Returns the error of the cycle
// it ran, or nil when nothing was pending.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil
		}
		if s.running {
			idle := s.idle
			s.mu.Unlock()
			select {
			case <-idle:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !s.pending {
			s.mu.Unlock()
			return nil
		}
		s.stopLocked()
		base, epoch := s.beginLocked()
		s.mu.Unlock()

		return s.run(base, epoch)
	}
}

// Close abandons any pending cycle and stops the timer. No write is issued
// after Close; an in-flight write has its context cancelled and its outcome
// is discarded.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.pending = false
	s.stopLocked()
	s.mu.Unlock()
	s.cancel()
	s.reportPending()
}

func (s *Scheduler) armLocked() {
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.timer = s.opts.Clock.AfterFunc(s.opts.QuietPeriod, func() { s.onTimer(gen) })
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) onTimer(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.running || !s.pending {
		// The settle path re-arms when pending is still set.
		s.mu.Unlock()
		return
	}
	base, epoch := s.beginLocked()
	s.mu.Unlock()

	_ = s.run(base, epoch)
}

// beginLocked claims the pending cycle and returns the diff baseline with
// the epoch it belongs to.
func (s *Scheduler) beginLocked() (ir.Snapshot, uint64) {
	s.pending = false
	s.running = true
	s.idle = make(chan struct{})
	return s.lastRemote.Clone(), s.epoch
}

// run executes one claimed cycle. The local order is captured here, outside
// the lock, because Local may take the owner's lock.
func (s *Scheduler) run(base ir.Snapshot, epoch uint64) error {
	local := s.opts.Local()
	res := diff.ComputeUpdates(base, local)

	var err error
	wrote := len(res.Updates) > 0
	if wrote {
		slog.Info("batch write", "collection", s.opts.Collection, "updates", len(res.Updates))
		err = s.opts.Store.BatchWrite(s.ctx, res.Updates)
	} else {
		slog.Debug("empty diff, nothing to write", "collection", s.opts.Collection)
	}

	s.mu.Lock()
	closed := s.closed
	if !closed && err == nil && wrote && epoch == s.epoch {
		s.lastRemote = local.Clone()
	}
	s.running = false
	close(s.idle)
	if !closed && s.pending {
		s.armLocked()
	}
	s.mu.Unlock()

	if closed {
		return err
	}

	switch {
	case err != nil:
		slog.Error("batch write failed", "collection", s.opts.Collection, "updates", len(res.Updates), "error", err)
		if s.opts.OnFailure != nil {
			s.opts.OnFailure(err)
		}
		s.publish(notify.KindFailure, notify.MessageGenericFailure, err)
	case wrote:
		s.publish(notify.KindSuccess, notify.MessageReorderSaved, nil)
	}
	s.reportPending()
	return err
}

func (s *Scheduler) publish(kind notify.Kind, msg string, err error) {
	s.opts.Sink.Publish(notify.Event{
		Kind:       kind,
		Source:     notify.SourceReorder,
		Message:    msg,
		Collection: s.opts.Collection,
		Actor:      s.opts.Actor,
		Seq:        s.opts.Seq.Next(),
		Err:        err,
	})
}

// reportPending calls OnPendingChange when the derived flag changed since
// the last report.
func (s *Scheduler) reportPending() {
	if s.opts.OnPendingChange == nil {
		return
	}
	s.mu.Lock()
	now := s.pending || s.running
	changed := now != s.reported
	s.reported = now
	s.mu.Unlock()
	if changed {
		s.opts.OnPendingChange(now)
	}
}
