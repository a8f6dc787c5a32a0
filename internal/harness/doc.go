// Package harness runs scripted editing sessions ("scenarios") against the
// full pipeline: editor, sequence model, reconcile scheduler, saga engine
// and an in-memory remote store wrapped with fault injection.
//
// # Scenario Format
//
//	name: cascade_delete_thumbnail
//	description: "Deleting the thumbnail item hands it to the next one"
//	collection:
//	  id: plan-1
//	  items: [A, B, C]
//	faults:
//	  - op: batch_write
//	    nth: 1
//	steps:
//	  - move: { from: 0, to: 2 }
//	  - advance: 2s
//	  - delete: A
//	    expect_local: [B, C]
//	assertions:
//	  - type: remote_order
//	    items: [B, C]
//	  - type: aggregate
//	    item_count: 2
//	    thumbnail: B.png
//
// Steps are one of move, reorder, delete, insert, advance (the manual
// clock), flush and refresh. A step that starts a saga run waits for it to
// finish before the next step runs.
//
// # Assertion Types
//
//   - local_order, remote_order: ids in order, positions dense
//   - aggregate: item_count and thumbnail of the parent
//   - call_count: remote calls of one op
//   - notification_count: notifications by source and kind
//   - run_states: the state history of one saga run
//
// # Deterministic Testing
//
// The harness uses a manual clock, fixed run tokens (run-1, run-2, ... unless
// run_tokens is set) and sequential store ids, so the trace of a scenario is
// identical on every run and can be compared against a golden file.
package harness
