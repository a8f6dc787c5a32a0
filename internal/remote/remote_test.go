package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/planbuilder/internal/ir"
)

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	m.Seed(
		ir.Aggregate{ID: "plan-1", Kind: ir.KindPlan, ItemCount: 3, Thumbnail: ir.StringPtr("a.png")},
		ir.Snapshot{
			{ID: "A", Position: 0, Payload: ir.IRObject{"thumbnail": ir.IRString("a.png")}},
			{ID: "B", Position: 1, Payload: ir.IRObject{"thumbnail": ir.IRString("b.png")}},
			{ID: "C", Position: 2},
		},
	)
	return m
}

// === Errors ===

func TestErrorHelpers(t *testing.T) {
	err := fmt.Errorf("step failed: %w", NewError(CodeNotFound, OpDelete, "A", nil))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnavailable(err))
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, "step failed: delete NOT_FOUND (id=A)", err.Error())

	cause := errors.New("disk full")
	wrapped := NewError(CodeUnavailable, OpBatchWrite, "", cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "batch_write UNAVAILABLE: disk full", wrapped.Error())
}

// === ApplyItemChanges ===

func TestApplyItemChanges(t *testing.T) {
	it := ir.Item{ID: "A", Position: 0, Payload: ir.IRObject{"thumbnail": ir.IRString("a.png"), "title": ir.IRString("x")}}

	out, err := ApplyItemChanges(OpUpdate, it, ir.IRObject{
		"position":  ir.IRInt(3),
		"thumbnail": ir.IRNull{},
		"minutes":   ir.IRInt(5),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Position)
	assert.NotContains(t, out.Payload, "thumbnail")
	assert.Equal(t, ir.IRInt(5), out.Payload["minutes"])
	assert.Equal(t, ir.IRString("a.png"), it.Payload["thumbnail"], "input untouched")

	_, err = ApplyItemChanges(OpBatchWrite, it, ir.IRObject{"position": ir.IRInt(-1)})
	assert.Equal(t, CodeInvalid, CodeOf(err))
	_, err = ApplyItemChanges(OpBatchWrite, it, ir.IRObject{"position": ir.IRString("1")})
	assert.Equal(t, CodeInvalid, CodeOf(err))
}

func TestValidateAggregateChanges(t *testing.T) {
	assert.NoError(t, ValidateAggregateChanges("p", ir.IRObject{"item_count": ir.IRInt(2), "thumbnail": ir.IRNull{}}))
	assert.Error(t, ValidateAggregateChanges("p", ir.IRObject{"item_count": ir.IRInt(-2)}))
	assert.Error(t, ValidateAggregateChanges("p", ir.IRObject{"thumbnail": ir.IRInt(1)}))
	err := ValidateAggregateChanges("p", ir.IRObject{"colour": ir.IRString("red")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

// === Memory ===

func TestMemory_LoadOrdersByPosition(t *testing.T) {
	m := seeded(t)
	agg, items, err := m.LoadCollection(context.Background(), "plan-1")
	require.NoError(t, err)

	assert.Equal(t, 3, agg.ItemCount)
	assert.Equal(t, []string{"A", "B", "C"}, items.IDs())

	_, _, err = m.LoadCollection(context.Background(), "nope")
	assert.True(t, IsNotFound(err))
}

func TestMemory_BatchWriteIsAtomic(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	err := m.BatchWrite(ctx, []ir.PendingUpdate{
		{ItemID: "A", Changes: ir.PositionChange(2)},
		{ItemID: "ghost", Changes: ir.PositionChange(0)},
	})
	assert.True(t, IsNotFound(err))

	_, items, err := m.LoadCollection(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 0, items[0].Position, "nothing applied")

	require.NoError(t, m.BatchWrite(ctx, []ir.PendingUpdate{
		{ItemID: "B", Changes: ir.PositionChange(0)},
		{ItemID: "C", Changes: ir.PositionChange(1)},
		{ItemID: "A", Changes: ir.PositionChange(2)},
	}))
	_, items, err = m.LoadCollection(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, items.IDs())
}

func TestMemory_UpdateCollectionAndFragment(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	require.NoError(t, m.Update(ctx, "plan-1", ir.IRObject{"item_count": ir.IRInt(2), "thumbnail": ir.IRString("b.png")}))
	require.NoError(t, m.Update(ctx, "C", ir.IRObject{"title": ir.IRString("Cooldown")}))
	assert.True(t, IsNotFound(m.Update(ctx, "zzz", ir.IRObject{})))

	agg, items, err := m.LoadCollection(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 2, agg.ItemCount)
	assert.Equal(t, "b.png", agg.ThumbnailValue())
	assert.Equal(t, ir.IRString("Cooldown"), items[2].Payload["title"])
}

func TestMemory_CreateAndDelete(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	created, err := m.Create(ctx, "plan-1", ir.Item{Position: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = m.Create(ctx, "missing", ir.Item{})
	assert.True(t, IsNotFound(err))
	_, err = m.Create(ctx, "plan-1", ir.Item{ID: "A"})
	assert.True(t, IsConflict(err))

	require.NoError(t, m.Delete(ctx, "A"))
	assert.True(t, IsNotFound(m.Delete(ctx, "A")))

	_, items, err := m.LoadCollection(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", created.ID}, items.IDs())
}

func TestMemory_Catalog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	q, err := m.CreateCollection(ctx, ir.Aggregate{Kind: ir.KindQueue, Title: "Mine"})
	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)

	_, err = m.CreateCollection(ctx, ir.Aggregate{ID: q.ID, Kind: ir.KindQueue})
	assert.True(t, IsConflict(err))
	_, err = m.CreateCollection(ctx, ir.Aggregate{Kind: "folder"})
	assert.Equal(t, CodeInvalid, CodeOf(err))

	all, err := m.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// === Faulty ===

func TestFaulty_RecordsCalls(t *testing.T) {
	f := NewFaulty(seeded(t))
	ctx := context.Background()

	require.NoError(t, f.BatchWrite(ctx, []ir.PendingUpdate{{ItemID: "A", Changes: ir.PositionChange(1)}, {ItemID: "B", Changes: ir.PositionChange(0)}}))
	require.NoError(t, f.Update(ctx, "plan-1", ir.IRObject{"item_count": ir.IRInt(3)}))
	_, _, err := f.LoadCollection(ctx, "plan-1")
	require.NoError(t, err)

	calls := f.Calls()
	require.Len(t, calls, 2, "loads are not recorded by default")
	assert.Equal(t, Call{Op: OpBatchWrite, Items: []string{"A", "B"}}, calls[0])
	assert.Equal(t, Call{Op: OpUpdate, ID: "plan-1", Changes: `{"item_count":3}`}, calls[1])
	assert.Equal(t, 1, f.Count(OpLoad))
}

func TestFaulty_FailNth(t *testing.T) {
	f := NewFaulty(seeded(t))
	ctx := context.Background()
	f.FailNth(OpDelete, 2, nil)

	require.NoError(t, f.Delete(ctx, "A"))
	err := f.Delete(ctx, "B")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, ErrInjected)

	require.NoError(t, f.Delete(ctx, "B"), "fault fires once")

	calls := f.Calls()
	assert.Equal(t, "UNAVAILABLE", calls[1].Err)
	assert.Empty(t, calls[2].Err)
}

func TestFaulty_FailNextKeepsTypedErrors(t *testing.T) {
	f := NewFaulty(seeded(t))
	f.FailNext(OpUpdate, NewError(CodeConflict, OpUpdate, "plan-1", nil))

	err := f.Update(context.Background(), "plan-1", ir.IRObject{})
	assert.True(t, IsConflict(err))
}

func TestFaulty_Hold(t *testing.T) {
	f := NewFaulty(seeded(t))
	release := f.Hold(OpBatchWrite)

	done := make(chan error, 1)
	go func() {
		done <- f.BatchWrite(context.Background(), nil)
	}()

	select {
	case <-done:
		t.Fatal("held call returned early")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("held call never released")
	}
}

func TestFaulty_HoldRespectsContext(t *testing.T) {
	f := NewFaulty(seeded(t))
	f.Hold(OpDelete)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.Delete(ctx, "A")
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, context.Canceled)
}
