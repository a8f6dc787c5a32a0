package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/planbuilder/internal/ir"
)

// Memory is an in-process Backend and Catalog. Ids for new documents are
// sequential ("c1", "f1", ...) so traces stay reproducible.
type Memory struct {
	mu          sync.Mutex
	collections map[string]ir.Aggregate
	fragments   map[string]ir.Item
	parentOf    map[string]string
	nextID      int
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]ir.Aggregate),
		fragments:   make(map[string]ir.Item),
		parentOf:    make(map[string]string),
	}
}

// Seed installs a collection and its items directly, bypassing the write
// path. Item positions are taken as given.
func (m *Memory) Seed(agg ir.Aggregate, items ir.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[agg.ID] = agg
	for _, it := range items {
		m.fragments[it.ID] = it.Clone()
		m.parentOf[it.ID] = agg.ID
	}
}

func (m *Memory) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%d", prefix, m.nextID)
}

// CreateCollection implements Catalog.
func (m *Memory) CreateCollection(ctx context.Context, agg ir.Aggregate) (ir.Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !agg.Kind.Valid() {
		return ir.Aggregate{}, NewError(CodeInvalid, OpCreate, agg.ID, fmt.Errorf("unknown kind %q", agg.Kind))
	}
	if agg.ID == "" {
		agg.ID = m.newID("c")
	}
	if _, exists := m.collections[agg.ID]; exists {
		return ir.Aggregate{}, NewError(CodeConflict, OpCreate, agg.ID, errors.New("collection exists"))
	}
	m.collections[agg.ID] = agg
	return agg, nil
}

// ListCollections implements Catalog.
func (m *Memory) ListCollections(ctx context.Context) ([]ir.Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ir.Aggregate, 0, len(m.collections))
	for _, agg := range m.collections {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, parentID string, item ir.Item) (ir.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[parentID]; !ok {
		return ir.Item{}, NewError(CodeNotFound, OpCreate, parentID, nil)
	}
	if item.ID == "" {
		item.ID = m.newID("f")
	}
	if _, exists := m.fragments[item.ID]; exists {
		return ir.Item{}, NewError(CodeConflict, OpCreate, item.ID, errors.New("fragment exists"))
	}
	item = item.Clone()
	if item.Payload == nil {
		item.Payload = ir.IRObject{}
	}
	m.fragments[item.ID] = item
	m.parentOf[item.ID] = parentID
	return item.Clone(), nil
}

// Update implements Store. id may name a fragment or a collection.
func (m *Memory) Update(ctx context.Context, id string, changes ir.IRObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.fragments[id]; ok {
		next, err := ApplyItemChanges(OpUpdate, it, changes)
		if err != nil {
			return err
		}
		m.fragments[id] = next
		return nil
	}
	if agg, ok := m.collections[id]; ok {
		if err := ValidateAggregateChanges(id, changes); err != nil {
			return err
		}
		m.collections[id] = agg.Apply(changes)
		return nil
	}
	return NewError(CodeNotFound, OpUpdate, id, nil)
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fragments[id]; !ok {
		return NewError(CodeNotFound, OpDelete, id, nil)
	}
	delete(m.fragments, id)
	delete(m.parentOf, id)
	return nil
}

// BatchWrite implements Store. All updates are validated before any is
// applied.
func (m *Memory) BatchWrite(ctx context.Context, updates []ir.PendingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := make(map[string]ir.Item, len(updates))
	for _, u := range updates {
		it, ok := staged[u.ItemID]
		if !ok {
			it, ok = m.fragments[u.ItemID]
		}
		if !ok {
			return NewError(CodeNotFound, OpBatchWrite, u.ItemID, nil)
		}
		next, err := ApplyItemChanges(OpBatchWrite, it, u.Changes)
		if err != nil {
			return err
		}
		staged[u.ItemID] = next
	}
	for id, it := range staged {
		m.fragments[id] = it
	}
	return nil
}

// LoadCollection implements Loader.
func (m *Memory) LoadCollection(ctx context.Context, parentID string) (ir.Aggregate, ir.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, ok := m.collections[parentID]
	if !ok {
		return ir.Aggregate{}, nil, NewError(CodeNotFound, OpLoad, parentID, nil)
	}
	items := ir.Snapshot{}
	for id, parent := range m.parentOf {
		if parent == parentID {
			items = append(items, m.fragments[id].Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID < items[j].ID
	})
	return agg, items, nil
}
