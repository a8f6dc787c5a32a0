package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/planbuilder/internal/ir"
)

// ErrInjected is the default cause of an injected failure.
var ErrInjected = errors.New("injected failure")

// Call is one recorded invocation of the wrapped backend.
type Call struct {
	Op      Op       `json:"op" yaml:"op"`
	ID      string   `json:"id,omitempty" yaml:"id,omitempty"`
	Items   []string `json:"items,omitempty" yaml:"items,omitempty"`
	Changes string   `json:"changes,omitempty" yaml:"changes,omitempty"`
	Err     string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type fault struct {
	nth int
	err error
}

// Faulty wraps a Backend, records every call and injects failures or holds
// on demand. Loads are recorded only when RecordLoads is set.
type Faulty struct {
	inner Backend

	mu          sync.Mutex
	calls       []Call
	counts      map[Op]int
	faults      map[Op][]fault
	holds       map[Op][]chan struct{}
	recordLoads bool
}

// NewFaulty wraps inner.
func NewFaulty(inner Backend) *Faulty {
	return &Faulty{
		inner:  inner,
		counts: make(map[Op]int),
		faults: make(map[Op][]fault),
		holds:  make(map[Op][]chan struct{}),
	}
}

// RecordLoads includes LoadCollection calls in the trace.
func (f *Faulty) RecordLoads(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordLoads = on
}

// FailNth makes the nth call (1-based, counted from creation) of op fail.
// A nil err becomes an UNAVAILABLE error wrapping ErrInjected; errors that
// are not *Error are wrapped the same way.
func (f *Faulty) FailNth(op Op, nth int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], fault{nth: nth, err: err})
}

// FailNext makes the next call of op fail.
func (f *Faulty) FailNext(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], fault{nth: f.counts[op] + 1, err: err})
}

// Hold parks the next call of op until the returned release func runs or
// the call's context ends.
func (f *Faulty) Hold(op Op) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.holds[op] = append(f.holds[op], ch)
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns a copy of the recorded trace.
func (f *Faulty) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times op was called.
func (f *Faulty) Count(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

// Inner returns the wrapped backend.
func (f *Faulty) Inner() Backend {
	return f.inner
}

// begin counts the call and returns the injected error and hold, if any.
func (f *Faulty) begin(op Op) (chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[op]++
	n := f.counts[op]

	var injected error
	kept := f.faults[op][:0]
	for _, ft := range f.faults[op] {
		if ft.nth == n && injected == nil {
			injected = toRemoteError(op, ft.err)
			continue
		}
		kept = append(kept, ft)
	}
	f.faults[op] = kept

	var hold chan struct{}
	if hs := f.holds[op]; len(hs) > 0 {
		hold = hs[0]
		f.holds[op] = hs[1:]
	}
	return hold, injected
}

func (f *Faulty) record(c Call, err error) {
	if err != nil {
		c.Err = string(CodeOf(err))
		if c.Err == "" {
			c.Err = err.Error()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Op == OpLoad && !f.recordLoads {
		return
	}
	f.calls = append(f.calls, c)
}

func toRemoteError(op Op, err error) error {
	if err == nil {
		err = ErrInjected
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return NewError(CodeUnavailable, op, "", err)
}

func wait(ctx context.Context, op Op, hold chan struct{}) error {
	if hold == nil {
		return nil
	}
	select {
	case <-hold:
		return nil
	case <-ctx.Done():
		return NewError(CodeUnavailable, op, "", ctx.Err())
	}
}

func changesString(changes ir.IRObject) string {
	if len(changes) == 0 {
		return ""
	}
	b, err := ir.MarshalCanonical(changes)
	if err != nil {
		return ""
	}
	return string(b)
}

// Create implements Store.
func (f *Faulty) Create(ctx context.Context, parentID string, item ir.Item) (ir.Item, error) {
	hold, injected := f.begin(OpCreate)
	err := wait(ctx, OpCreate, hold)
	if err == nil {
		err = injected
	}
	var created ir.Item
	if err == nil {
		created, err = f.inner.Create(ctx, parentID, item)
	}
	call := Call{Op: OpCreate, ID: parentID}
	if err == nil {
		call.Items = []string{created.ID}
	}
	f.record(call, err)
	return created, err
}

// Update implements Store.
func (f *Faulty) Update(ctx context.Context, id string, changes ir.IRObject) error {
	hold, injected := f.begin(OpUpdate)
	err := wait(ctx, OpUpdate, hold)
	if err == nil {
		err = injected
	}
	if err == nil {
		err = f.inner.Update(ctx, id, changes)
	}
	f.record(Call{Op: OpUpdate, ID: id, Changes: changesString(changes)}, err)
	return err
}

// Delete implements Store.
func (f *Faulty) Delete(ctx context.Context, id string) error {
	hold, injected := f.begin(OpDelete)
	err := wait(ctx, OpDelete, hold)
	if err == nil {
		err = injected
	}
	if err == nil {
		err = f.inner.Delete(ctx, id)
	}
	f.record(Call{Op: OpDelete, ID: id}, err)
	return err
}

// BatchWrite implements Store.
func (f *Faulty) BatchWrite(ctx context.Context, updates []ir.PendingUpdate) error {
	hold, injected := f.begin(OpBatchWrite)
	err := wait(ctx, OpBatchWrite, hold)
	if err == nil {
		err = injected
	}
	if err == nil {
		err = f.inner.BatchWrite(ctx, updates)
	}
	items := make([]string, len(updates))
	for i, u := range updates {
		items[i] = u.ItemID
	}
	f.record(Call{Op: OpBatchWrite, Items: items}, err)
	return err
}

// LoadCollection implements Loader.
func (f *Faulty) LoadCollection(ctx context.Context, parentID string) (ir.Aggregate, ir.Snapshot, error) {
	hold, injected := f.begin(OpLoad)
	err := wait(ctx, OpLoad, hold)
	if err == nil {
		err = injected
	}
	var (
		agg   ir.Aggregate
		items ir.Snapshot
	)
	if err == nil {
		agg, items, err = f.inner.LoadCollection(ctx, parentID)
	}
	f.record(Call{Op: OpLoad, ID: parentID}, err)
	return agg, items, err
}
