package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/planbuilder/internal/clock"
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/remote"
	"github.com/roach88/planbuilder/internal/testutil"
)

func startEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func waitRun(t *testing.T, r *Run) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := r.Wait(ctx)
	require.NoError(t, err, "run did not finish")
	return res
}

func loadPlan(t *testing.T, mem *remote.Memory) (ir.Aggregate, ir.Snapshot) {
	t.Helper()
	agg, items, err := mem.LoadCollection(context.Background(), "plan-1")
	require.NoError(t, err)
	return agg, items
}

func deleteRun(t *testing.T, store remote.Store, mem *remote.Memory, id string) *Run {
	t.Helper()
	agg, items := loadPlan(t, mem)
	r, err := NewCascadeDelete(CascadeDeleteInput{
		Store:     store,
		Aggregate: agg,
		Local:     items,
		Baseline:  items,
		ItemID:    id,
	})
	require.NoError(t, err)
	return r
}

// =============================================================================
// Cascade delete
// =============================================================================

func TestCascadeDelete_ReassignsThumbnail(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A", "B", "C")
	sink := &notify.Recorder{}
	e := startEngine(t, WithSink(sink), WithTokenGenerator(clock.NewFixedGenerator("run-1")))

	r := deleteRun(t, faulty, mem, "A")
	token, err := e.Start(r)
	require.NoError(t, err)
	assert.Equal(t, "run-1", token)

	res := waitRun(t, r)
	assert.Equal(t, Succeeded, res.Outcome)
	assert.Equal(t, Step3Confirmed, res.State)
	assert.Equal(t, []State{
		Idle,
		Step1Submitted, Step1Confirmed,
		Step2Submitted, Step2Confirmed,
		Step3Submitted, Step3Confirmed,
	}, res.History)

	agg, items := loadPlan(t, mem)
	assert.Equal(t, []string{"B", "C"}, items.IDs())
	require.NoError(t, items.Validate())
	assert.Equal(t, 2, agg.ItemCount)
	assert.Equal(t, "B.png", agg.ThumbnailValue())

	assert.Equal(t, 2, res.Data.Aggregate.ItemCount)
	assert.Equal(t, "B.png", res.Data.Aggregate.ThumbnailValue())
	assert.Equal(t, []string{"B", "C"}, res.Data.After.IDs())

	assert.Equal(t, 1, faulty.Count(remote.OpDelete))
	assert.Equal(t, 1, faulty.Count(remote.OpBatchWrite))
	assert.Equal(t, 1, faulty.Count(remote.OpUpdate))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindSuccess, events[0].Kind)
	assert.Equal(t, notify.SourceCascadeDelete, events[0].Source)
	assert.Equal(t, "run-1", events[0].Token)
}

func TestCascadeDelete_FailureMidCascade(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A", "B", "C")
	faulty.FailNth(remote.OpBatchWrite, 1, nil)
	sink := &notify.Recorder{}
	e := startEngine(t, WithSink(sink))

	r := deleteRun(t, faulty, mem, "A")
	var hooked []Result
	r.OnDone(func(res Result) { hooked = append(hooked, res) })
	_, err := e.Start(r)
	require.NoError(t, err)

	res := waitRun(t, r)
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, []State{Idle, Step1Submitted, Step1Confirmed, Step2Submitted, Aborted}, res.History)
	assert.True(t, IsStepFailure(res.Err))
	assert.True(t, remote.IsUnavailable(res.Err))

	var re *RunError
	require.ErrorAs(t, res.Err, &re)
	assert.Equal(t, StepReindex, re.Step)
	assert.Equal(t, remote.OpBatchWrite, re.Op)

	// step 3 never ran: the parent keeps A's thumbnail and the old count
	agg, items := loadPlan(t, mem)
	assert.Equal(t, 3, agg.ItemCount)
	assert.Equal(t, "A.png", agg.ThumbnailValue())
	assert.Equal(t, []string{"B", "C"}, items.IDs(), "delete already applied remotely")
	assert.Equal(t, 0, faulty.Count(remote.OpUpdate))

	assert.Equal(t, 1, sink.Count(notify.SourceCascadeDelete, notify.KindFailure))
	assert.Equal(t, 0, sink.Count(notify.SourceCascadeDelete, notify.KindSuccess))
	require.Len(t, hooked, 1)
	assert.Equal(t, Failed, hooked[0].Outcome)
	assert.Zero(t, e.Guard().Runs())
}

func TestCascadeDelete_FirstStepFailureSkipsEverything(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A", "B")
	faulty.FailNext(remote.OpDelete, remote.NewError(remote.CodeNotFound, remote.OpDelete, "A", nil))
	e := startEngine(t)

	r := deleteRun(t, faulty, mem, "A")
	_, err := e.Start(r)
	require.NoError(t, err)

	res := waitRun(t, r)
	assert.Equal(t, []State{Idle, Step1Submitted, Aborted}, res.History)
	assert.True(t, remote.IsNotFound(res.Err))
	var re *RunError
	require.ErrorAs(t, res.Err, &re)
	assert.Equal(t, remote.OpDelete, re.Op)
	assert.Equal(t, 0, faulty.Count(remote.OpBatchWrite))
	assert.Equal(t, 0, faulty.Count(remote.OpUpdate))
}

func TestCascadeDelete_EmptyReindexMakesNoCall(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A", "B", "C")
	e := startEngine(t)

	r := deleteRun(t, faulty, mem, "C")
	_, err := e.Start(r)
	require.NoError(t, err)

	res := waitRun(t, r)
	assert.Equal(t, Succeeded, res.Outcome)
	assert.Contains(t, res.History, Step2Submitted)
	assert.Contains(t, res.History, Step2Confirmed)
	assert.Empty(t, res.Data.Reindex)
	assert.Equal(t, 0, faulty.Count(remote.OpBatchWrite))

	agg, _ := loadPlan(t, mem)
	assert.Equal(t, 2, agg.ItemCount)
	assert.Equal(t, "A.png", agg.ThumbnailValue(), "C did not supply the thumbnail")
}

func TestCascadeDelete_ReindexCarriesUnwrittenMoves(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A", "B", "C", "D")
	agg, remoteItems := loadPlan(t, mem)

	// local order moved D to the front but the batch was never written
	local := ir.Snapshot{remoteItems[3], remoteItems[0], remoteItems[1], remoteItems[2]}.Normalized()

	r, err := NewCascadeDelete(CascadeDeleteInput{
		Store:     faulty,
		Aggregate: agg,
		Local:     local,
		Baseline:  remoteItems,
		ItemID:    "B",
	})
	require.NoError(t, err)

	e := startEngine(t)
	_, err = e.Start(r)
	require.NoError(t, err)
	res := waitRun(t, r)
	require.Equal(t, Succeeded, res.Outcome)

	_, items := loadPlan(t, mem)
	assert.Equal(t, []string{"D", "A", "C"}, items.IDs())
	require.NoError(t, items.Validate())
}

func TestCascadeDelete_LastItemClearsThumbnail(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A")
	e := startEngine(t)

	r := deleteRun(t, faulty, mem, "A")
	_, err := e.Start(r)
	require.NoError(t, err)
	res := waitRun(t, r)
	require.Equal(t, Succeeded, res.Outcome)

	agg, items := loadPlan(t, mem)
	assert.Empty(t, items)
	assert.Zero(t, agg.ItemCount)
	assert.Nil(t, agg.Thumbnail)
	assert.True(t, res.Data.ParentChanges.IsNull(ir.FieldThumbnail))
}

func TestNewCascadeDelete_Validation(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A")
	agg, items := loadPlan(t, mem)

	_, err := NewCascadeDelete(CascadeDeleteInput{Aggregate: agg, Local: items, ItemID: "A"})
	assert.ErrorIs(t, err, ErrInvalidRun)

	_, err = NewCascadeDelete(CascadeDeleteInput{Store: faulty, Aggregate: agg, Local: items, ItemID: "Z"})
	assert.ErrorIs(t, err, ErrInvalidRun)
}

// =============================================================================
// Thumbnail policy
// =============================================================================

func TestNextThumbnail(t *testing.T) {
	abc := testutil.Items("A", "B", "C")
	noThumb := ir.Snapshot{
		{ID: "A", Position: 0, Payload: ir.IRObject{ir.FieldThumbnail: ir.IRString("A.png")}},
		{ID: "B", Position: 1, Payload: ir.IRObject{}},
	}

	tests := []struct {
		name        string
		thumbnail   *string
		before      ir.Snapshot
		deleted     int
		wantChanged bool
		want        *string
	}{
		{"deleted first supplies thumbnail", ir.StringPtr("A.png"), abc, 0, true, ir.StringPtr("B.png")},
		{"deleted middle supplies thumbnail", ir.StringPtr("B.png"), abc, 1, true, ir.StringPtr("A.png")},
		{"deleted last supplies thumbnail", ir.StringPtr("C.png"), abc, 2, true, ir.StringPtr("A.png")},
		{"deleted item not the thumbnail", ir.StringPtr("A.png"), abc, 2, false, nil},
		{"parent has no thumbnail", nil, abc, 0, false, nil},
		{"only item", ir.StringPtr("A.png"), abc[:1], 0, true, nil},
		{"replacement has no thumbnail", ir.StringPtr("A.png"), noThumb, 0, true, nil},
		{"index out of range", ir.StringPtr("A.png"), abc, 5, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := ir.Aggregate{ID: "plan-1", Thumbnail: tt.thumbnail}
			got, changed := NextThumbnail(agg, tt.before, tt.deleted)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Cascade insert
// =============================================================================

func TestCascadeInsert_AppendsAndCounts(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1", "A", "B")
	agg, items := loadPlan(t, mem)
	sink := &notify.Recorder{}
	e := startEngine(t, WithSink(sink), WithActor("user-1"))

	r, err := NewCascadeInsert(CascadeInsertInput{
		Store:     faulty,
		Aggregate: agg,
		Local:     items,
		Payload:   ir.IRObject{ir.FieldThumbnail: ir.IRString("new.png")},
	})
	require.NoError(t, err)
	_, err = e.Start(r)
	require.NoError(t, err)

	res := waitRun(t, r)
	require.Equal(t, Succeeded, res.Outcome)
	assert.Equal(t, []State{Idle, Step1Submitted, Step1Confirmed, Step2Submitted, Step2Confirmed}, res.History)
	require.NotEmpty(t, res.Data.Target.ID)
	assert.Equal(t, 2, res.Data.Target.Position)

	gotAgg, gotItems := loadPlan(t, mem)
	assert.Equal(t, 3, gotAgg.ItemCount)
	assert.Equal(t, "A.png", gotAgg.ThumbnailValue())
	assert.Equal(t, []string{"A", "B", res.Data.Target.ID}, gotItems.IDs())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.SourceInsert, events[0].Source)
	assert.Equal(t, "user-1", events[0].Actor)
}

func TestCascadeInsert_EmptyPlanAdoptsThumbnail(t *testing.T) {
	mem, faulty := testutil.SeededMemory("plan-1")
	agg, items := loadPlan(t, mem)
	e := startEngine(t)

	r, err := NewCascadeInsert(CascadeInsertInput{
		Store:     faulty,
		Aggregate: agg,
		Local:     items,
		Payload:   ir.IRObject{ir.FieldThumbnail: ir.IRString("first.png")},
	})
	require.NoError(t, err)
	_, err = e.Start(r)
	require.NoError(t, err)
	require.Equal(t, Succeeded, waitRun(t, r).Outcome)

	gotAgg, _ := loadPlan(t, mem)
	assert.Equal(t, 1, gotAgg.ItemCount)
	assert.Equal(t, "first.png", gotAgg.ThumbnailValue())
}
