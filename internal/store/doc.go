// Package store is the SQLite document store behind planbuilder's remote
// interface. It implements remote.Backend and remote.Catalog.
//
// Tables:
//   - collections: plan / queue aggregates (item_count, thumbnail)
//   - fragments: ordered items, payload stored as canonical JSON
//   - batch_log: one row per applied batch write, keyed by ir.BatchKey
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON (deleting a collection removes its fragments)
//   - one open connection: SQLite has a single writer
//
// Every failure is returned as *remote.Error. Constraint violations map to
// CONFLICT, missing rows to NOT_FOUND and everything else to UNAVAILABLE.
//
// Reads order fragments by position ASC, id ASC COLLATE BINARY so loads are
// deterministic even while positions are transiently duplicated.
package store
