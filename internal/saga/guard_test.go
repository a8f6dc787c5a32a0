package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_MarkAndSuppress(t *testing.T) {
	g := NewGuard()

	assert.False(t, g.Submitted("run-1", StepDeleteItem))
	g.Mark("run-1", StepDeleteItem)

	assert.True(t, g.Submitted("run-1", StepDeleteItem))
	assert.True(t, g.Submitted("run-1", StepDeleteItem))
	assert.False(t, g.Submitted("run-1", StepReindex))
	assert.False(t, g.Submitted("run-2", StepDeleteItem), "history is per run")

	assert.Equal(t, 2, g.Suppressed())
	assert.Equal(t, 1, g.Runs())
}

func TestGuard_ClearForgetsRun(t *testing.T) {
	g := NewGuard()
	g.Mark("run-1", StepDeleteItem)
	g.Mark("run-2", StepDeleteItem)

	g.Clear("run-1")
	assert.False(t, g.Submitted("run-1", StepDeleteItem))
	assert.True(t, g.Submitted("run-2", StepDeleteItem))
	assert.Equal(t, 1, g.Runs())
}

func TestEventQueue_FIFOAndClose(t *testing.T) {
	q := newEventQueue()
	require.True(t, q.Enqueue(Event{Type: EventStart, Token: "a"}))
	require.True(t, q.Enqueue(Event{Type: EventEvaluate, Token: "b"}))
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a", ev.Token)
	ev, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "b", ev.Token)
	_, ok = q.TryDequeue()
	assert.False(t, ok)

	q.Close()
	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(Event{Type: EventEvaluate}))
	<-q.Wait() // closed signal never blocks
}

func TestStateAndEventNames(t *testing.T) {
	assert.Equal(t, "Idle", Idle.String())
	assert.Equal(t, "Step2Submitted", submitted(1).String())
	assert.Equal(t, "Step3Confirmed", confirmed(2).String())
	assert.Equal(t, "Aborted", Aborted.String())
	assert.Equal(t, "State(42)", State(42).String())

	assert.Equal(t, "Succeeded", Succeeded.String())
	assert.Equal(t, "call-settled", EventCallSettled.String())
	assert.Equal(t, "unknown", EventType(0).String())
}

func TestRunError_Message(t *testing.T) {
	err := &RunError{Code: ErrCodeStepFailed, Token: "run-1", Step: StepReindex}
	assert.Equal(t, "STEP_FAILED (run=run-1, step=reindex)", err.Error())
	assert.True(t, IsStepFailure(err))
	assert.False(t, IsStepFailure(ErrEngineStopped))
}
