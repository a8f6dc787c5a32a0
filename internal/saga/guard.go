package saga

import (
	"sync"

	"github.com/roach88/planbuilder/internal/ir"
)

// Guard makes step submission at-most-once per run.
//
// It keeps, per run token, the set of steps whose call was already issued.
// Evaluation checks Submitted before issuing and calls Mark right after.
// A repeated evaluation for a marked step is suppressed and counted.
//
// The history lives only as long as the run: both terminal states Clear it.
type Guard struct {
	mu         sync.Mutex
	history    map[string]map[string]bool // run token -> step key -> submitted
	suppressed int
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{history: make(map[string]map[string]bool)}
}

// Submitted reports whether stepID was already issued in this run. A true
// result counts as a suppressed resubmission.
func (g *Guard) Submitted(token, stepID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.history[token][ir.StepKey(token, stepID)] {
		g.suppressed++
		return true
	}
	return false
}

// Mark records that stepID was issued in this run.
func (g *Guard) Mark(token, stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.history[token] == nil {
		g.history[token] = make(map[string]bool)
	}
	g.history[token][ir.StepKey(token, stepID)] = true
}

// Clear forgets everything about a run.
func (g *Guard) Clear(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.history, token)
}

// Suppressed returns how many resubmissions were blocked.
func (g *Guard) Suppressed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

// Runs returns the number of runs with tracked history.
func (g *Guard) Runs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.history)
}
