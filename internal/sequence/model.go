package sequence

import (
	"fmt"

	"github.com/roach88/planbuilder/internal/ir"
)

// Model is the local ordered list of one collection.
//
// Not safe for concurrent use; the editor serializes gesture handlers and
// rollbacks.
type Model struct {
	items []ir.Item
}

// New creates a model holding a normalized copy of items.
func New(items ir.Snapshot) *Model {
	m := &Model{}
	m.ReplaceAll(items)
	return m
}

// Len returns the number of items.
func (m *Model) Len() int {
	return len(m.items)
}

// Snapshot returns a copy of the current order. Callers may keep it; later
// mutations do not show through.
func (m *Model) Snapshot() ir.Snapshot {
	return ir.Snapshot(m.items).Clone()
}

// At returns the item at index i.
func (m *Model) At(i int) (ir.Item, error) {
	if i < 0 || i >= len(m.items) {
		return ir.Item{}, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(m.items))
	}
	return m.items[i].Clone(), nil
}

// Move relocates the item at from to index to. Positions are rewritten only
// for indices in [min(from,to), max(from,to)]; everything outside keeps its
// position untouched. from == to is a no-op.
func (m *Model) Move(from, to int) error {
	n := len(m.items)
	if from < 0 || from >= n {
		return fmt.Errorf("move from %d: %w (len %d)", from, ErrIndexOutOfRange, n)
	}
	if to < 0 || to >= n {
		return fmt.Errorf("move to %d: %w (len %d)", to, ErrIndexOutOfRange, n)
	}
	if from == to {
		return nil
	}

	moved := m.items[from]
	if from < to {
		copy(m.items[from:to], m.items[from+1:to+1])
	} else {
		copy(m.items[to+1:from+1], m.items[to:from])
	}
	m.items[to] = moved

	lo, hi := min(from, to), max(from, to)
	for i := lo; i <= hi; i++ {
		m.items[i].Position = i
	}
	return nil
}

// Remove deletes the item with the given id and closes the gap. It returns
// the removed item (with its former position) and its former index.
func (m *Model) Remove(id string) (ir.Item, int, error) {
	idx := ir.Snapshot(m.items).IndexOf(id)
	if idx < 0 {
		return ir.Item{}, -1, fmt.Errorf("remove %q: %w", id, ErrItemNotFound)
	}

	removed := m.items[idx]
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	for i := idx; i < len(m.items); i++ {
		m.items[i].Position = i
	}
	return removed, idx, nil
}

// Insert places item at index (0..len inclusive) and shifts the tail.
func (m *Model) Insert(item ir.Item, index int) error {
	if index < 0 || index > len(m.items) {
		return fmt.Errorf("insert at %d: %w (len %d)", index, ErrIndexOutOfRange, len(m.items))
	}
	if ir.Snapshot(m.items).IndexOf(item.ID) >= 0 {
		return fmt.Errorf("insert %q: %w", item.ID, ErrDuplicateItem)
	}

	item = item.Clone()
	m.items = append(m.items, ir.Item{})
	copy(m.items[index+1:], m.items[index:])
	m.items[index] = item
	for i := index; i < len(m.items); i++ {
		m.items[i].Position = i
	}
	return nil
}

// Append is Insert at the end.
func (m *Model) Append(item ir.Item) error {
	return m.Insert(item, len(m.items))
}

// Reorder applies a complete new order in one gesture (batch edit). ids must
// be a permutation of the current membership.
func (m *Model) Reorder(ids []string) error {
	if len(ids) != len(m.items) {
		return fmt.Errorf("%w: got %d ids, have %d items", ErrNotPermutation, len(ids), len(m.items))
	}
	byID := make(map[string]ir.Item, len(m.items))
	for _, it := range m.items {
		byID[it.ID] = it
	}

	next := make([]ir.Item, len(ids))
	for i, id := range ids {
		it, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: unknown or repeated id %q", ErrNotPermutation, id)
		}
		delete(byID, id)
		it.Position = i
		next[i] = it
	}
	m.items = next
	return nil
}

// ReplaceAll swaps in a new list wholesale, used by loads and rollbacks.
// Positions are normalized to the slice order.
func (m *Model) ReplaceAll(items ir.Snapshot) {
	m.items = items.Normalized()
	if m.items == nil {
		m.items = []ir.Item{}
	}
}
