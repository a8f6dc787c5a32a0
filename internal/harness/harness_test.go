package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedABC() Seed {
	return Seed{ID: "plan-1", Items: []string{"A", "B", "C"}}
}

func TestRun_SimpleReorder(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_reorder",
		Collection: seedABC(),
		Steps: []Step{
			{Move: &MoveArgs{From: 0, To: 2}, ExpectLocal: []string{"B", "C", "A"}},
			{Advance: "2s"},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteOrder, Items: []string{"B", "C", "A"}},
			{Type: AssertCallCount, Op: "batch_write", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 4)
	assert.Equal(t, EventGesture, result.Trace[0].Type)
	assert.Equal(t, EventGesture, result.Trace[1].Type)
	assert.Equal(t, EventCall, result.Trace[2].Type)
	assert.Equal(t, EventNotify, result.Trace[3].Type)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestRun_NothingWrittenBeforeQuietPeriod(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_quiet",
		Collection: seedABC(),
		Steps: []Step{
			{Move: &MoveArgs{From: 0, To: 2}},
			{Advance: "1999ms"},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteOrder, Items: []string{"A", "B", "C"}},
			{Type: AssertCallCount, Op: "batch_write", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_QuietPeriodOverride(t *testing.T) {
	scenario := &Scenario{
		Name:        "inline_quiet_override",
		Collection:  seedABC(),
		QuietPeriod: "500ms",
		Steps: []Step{
			{Move: &MoveArgs{From: 2, To: 0}},
			{Advance: "500ms"},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteOrder, Items: []string{"C", "A", "B"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CascadeDelete(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_cascade",
		Collection: seedABC(),
		Steps: []Step{
			{Delete: "B", ExpectLocal: []string{"A", "C"}},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteOrder, Items: []string{"A", "C"}},
			{Type: AssertAggregate, ItemCount: intPtr(2), Thumbnail: strPtr("A.png")},
			{Type: AssertRunStates, Token: "run-1", States: []string{
				"Idle", "Step1Submitted", "Step1Confirmed",
				"Step2Submitted", "Step2Confirmed",
				"Step3Submitted", "Step3Confirmed",
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var update *TraceEvent
	for i := range result.Trace {
		if result.Trace[i].Op == "update" {
			update = &result.Trace[i]
		}
	}
	require.NotNil(t, update)
	assert.Equal(t, `{"item_count":2}`, update.Changes, "thumbnail untouched when another item is deleted")
}

func TestRun_CustomRunTokens(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_tokens",
		Collection: seedABC(),
		RunTokens:  []string{"first", "second"},
		Steps: []Step{
			{Delete: "C"},
			{Delete: "A"},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteOrder, Items: []string{"B"}},
			{Type: AssertRunStates, Token: "second", States: []string{
				"Idle", "Step1Submitted", "Step1Confirmed",
				"Step2Submitted", "Step2Confirmed",
				"Step3Submitted", "Step3Confirmed",
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "B.png", result.Final.Aggregate.ThumbnailValue())
}

func TestRun_FaultCode(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_fault_code",
		Collection: seedABC(),
		Faults:     []Fault{{Op: "delete", Nth: 1, Code: "CONFLICT"}},
		Steps: []Step{
			{Delete: "A", ExpectLocal: []string{"A", "B", "C"}},
		},
		Assertions: []Assertion{
			{Type: AssertCallCount, Op: "batch_write", Count: 0},
			{Type: AssertRunStates, Token: "run-1", States: []string{"Idle", "Step1Submitted", "Aborted"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var call TraceEvent
	for _, ev := range result.Trace {
		if ev.Type == EventCall {
			call = ev
		}
	}
	assert.Equal(t, "delete", call.Op)
	assert.Equal(t, "CONFLICT", call.Error)
}

// === Step expectations ===

func TestRun_ExpectError(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_expect_error",
		Collection: seedABC(),
		Steps: []Step{
			{Move: &MoveArgs{From: 0, To: 7}, ExpectError: "index_out_of_range"},
			{Reorder: []string{"A", "B"}, ExpectError: "not_permutation"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "index_out_of_range", result.Trace[0].Rejected)
	assert.Equal(t, "not_permutation", result.Trace[1].Rejected)
}

func TestRun_ExpectErrorButSucceeded(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_expect_error_missing",
		Collection: seedABC(),
		Steps: []Step{
			{Move: &MoveArgs{From: 0, To: 1}, ExpectError: "index_out_of_range"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "got success")
}

func TestRun_UnexpectedRejection(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_unexpected_rejection",
		Collection: seedABC(),
		Steps: []Step{
			{Delete: "Z"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "item_not_found", result.Trace[0].Rejected)
}

func TestRun_ExpectLocalMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_expect_local",
		Collection: seedABC(),
		Steps: []Step{
			{Move: &MoveArgs{From: 0, To: 1}, ExpectLocal: []string{"A", "B", "C"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "local order [B A C]")
}

func TestRun_MissingCollection(t *testing.T) {
	scenario := &Scenario{
		Name:       "inline_missing",
		Collection: Seed{ID: ""},
		Steps:      []Step{{Flush: true}},
	}
	_, err := Run(scenario)
	assert.Error(t, err)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/cascade_delete_thumbnail.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Final.Remote, second.Final.Remote)
}

// === Result ===

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestResult_AddStampsSeq(t *testing.T) {
	result := NewResult()
	result.add(TraceEvent{Type: EventGesture, Seq: 42})
	result.add(TraceEvent{Type: EventCall})

	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
