// Package remote defines the boundary to the durable document store that
// owns collections and their fragments.
//
// The pipeline only ever sees the Store and Loader interfaces. Concrete
// backends live elsewhere (internal/store for SQLite); this package also
// provides an in-memory backend and a fault-injecting wrapper for tests and
// scenario runs.
package remote

import (
	"context"

	"github.com/roach88/planbuilder/internal/ir"
)

// Op names a Store method. Used in traces, errors and fault plans.
type Op string

const (
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpDelete     Op = "delete"
	OpBatchWrite Op = "batch_write"
	OpLoad       Op = "load"
)

// Store is the write side of the remote document store.
//
// Each call either succeeds or returns a *Error. BatchWrite applies every
// update or none of them.
type Store interface {
	Create(ctx context.Context, parentID string, item ir.Item) (ir.Item, error)
	Update(ctx context.Context, id string, changes ir.IRObject) error
	Delete(ctx context.Context, id string) error
	BatchWrite(ctx context.Context, updates []ir.PendingUpdate) error
}

// Loader fetches a collection: the parent aggregate and its items ordered
// by position.
type Loader interface {
	LoadCollection(ctx context.Context, parentID string) (ir.Aggregate, ir.Snapshot, error)
}

// Backend is a store that can also load.
type Backend interface {
	Store
	Loader
}

// Catalog manages parent collections. Not every backend supports it.
type Catalog interface {
	CreateCollection(ctx context.Context, agg ir.Aggregate) (ir.Aggregate, error)
	ListCollections(ctx context.Context) ([]ir.Aggregate, error)
}
