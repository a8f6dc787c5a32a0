// Package saga runs cascading mutations: an ordered list of dependent
// remote calls where each step is issued only after the previous one is
// confirmed, and any failure aborts the rest.
//
// # Execution model
//
// Engine is a single-writer event loop. All run state is owned by the Run
// goroutine; remote calls execute on their own goroutines and report back
// by enqueueing call-busy and call-settled events. The loop processes
// events strictly in FIFO order.
//
// # Guarantees
//
//   - A step's call is issued at most once per run, however many evaluate
//     events arrive (Guard).
//   - A step counts as confirmed only after its call was observed busy and
//     then settled without error.
//   - Step N+1 builds its request from the data step N confirmed.
//   - A failed step moves the run to Aborted; later steps never run and
//     exactly one failure notification is published.
//   - Both terminal states clear the run's guard and call tracking.
//   - Nothing is retried automatically.
//
// # Cascade delete
//
// NewCascadeDelete builds the three-step run that removes a fragment:
// delete it, rewrite the survivors' positions, then update the parent's
// item_count and (if needed) thumbnail. NewCascadeInsert is the two-step
// counterpart for adding a fragment.
package saga
