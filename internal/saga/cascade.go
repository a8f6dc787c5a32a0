package saga

import (
	"context"
	"fmt"

	"github.com/roach88/planbuilder/internal/diff"
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/remote"
)

// Step ids of the cascading runs.
const (
	StepDeleteItem   = "delete_item"
	StepReindex      = "reindex"
	StepUpdateParent = "update_parent"
	StepCreateItem   = "create_item"
)

// CascadeDeleteInput describes a delete gesture.
type CascadeDeleteInput struct {
	Store     remote.Store
	Aggregate ir.Aggregate

	// Local is the order on screen before the delete. Baseline is the last
	// order the remote confirmed; the reindex batch is diffed against it so
	// moves that had not been written yet travel with the delete.
	Local    ir.Snapshot
	Baseline ir.Snapshot

	ItemID string
}

// NewCascadeDelete builds the three-step delete run:
//
//	delete_item    Delete(item)
//	reindex        BatchWrite(positions of the survivors)
//	update_parent  Update(parent, {item_count, thumbnail?})
func NewCascadeDelete(in CascadeDeleteInput) (*Run, error) {
	if in.Store == nil {
		return nil, fmt.Errorf("%w: no store", ErrInvalidRun)
	}
	idx := in.Local.IndexOf(in.ItemID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: item %q not in collection %q", ErrInvalidRun, in.ItemID, in.Aggregate.ID)
	}

	before := in.Local.Normalized()
	after := make(ir.Snapshot, 0, len(before)-1)
	after = append(after, before[:idx]...)
	after = append(after, before[idx+1:]...)
	after = after.Normalized()

	data := &CascadeData{
		Collection:  in.Aggregate.ID,
		Aggregate:   in.Aggregate,
		Before:      before,
		After:       after,
		Baseline:    in.Baseline.Clone(),
		Target:      before[idx].Clone(),
		TargetIndex: idx,
	}
	store := in.Store

	deleteItem := Step{
		ID: StepDeleteItem,
		Op: remote.OpDelete,
		Build: func(d *CascadeData) (Call, error) {
			id := d.Target.ID
			return func(ctx context.Context) error {
				return store.Delete(ctx, id)
			}, nil
		},
	}

	reindex := Step{
		ID: StepReindex,
		Op: remote.OpBatchWrite,
		Build: func(d *CascadeData) (Call, error) {
			d.Reindex = diff.ComputeUpdates(d.Baseline, d.After).Updates
			if len(d.Reindex) == 0 {
				return nil, nil
			}
			updates := append([]ir.PendingUpdate(nil), d.Reindex...)
			return func(ctx context.Context) error {
				return store.BatchWrite(ctx, updates)
			}, nil
		},
		Confirm: func(d *CascadeData) {
			d.Baseline = d.After.Clone()
		},
	}

	updateParent := Step{
		ID: StepUpdateParent,
		Op: remote.OpUpdate,
		Build: func(d *CascadeData) (Call, error) {
			changes := ir.IRObject{ir.FieldItemCount: ir.IRInt(len(d.After))}
			if next, changed := NextThumbnail(d.Aggregate, d.Before, d.TargetIndex); changed {
				if next == nil {
					changes[ir.FieldThumbnail] = ir.IRNull{}
				} else {
					changes[ir.FieldThumbnail] = ir.IRString(*next)
				}
			}
			d.ParentChanges = changes
			parentID := d.Aggregate.ID
			sent := changes.Clone()
			return func(ctx context.Context) error {
				return store.Update(ctx, parentID, sent)
			}, nil
		},
		Confirm: func(d *CascadeData) {
			d.Aggregate = d.Aggregate.Apply(d.ParentChanges)
		},
	}

	return NewRun(in.Aggregate.ID, notify.SourceCascadeDelete, notify.MessageItemDeleted, data,
		deleteItem, reindex, updateParent)
}

// NextThumbnail decides the parent's thumbnail after the item at
// deletedIndex of before is removed. changed is false when the deleted item
// did not supply the current thumbnail; the parent then keeps it.
//
// Otherwise the replacement is the first item's thumbnail, or the second
// item's when the deleted item was first. A nil result clears the
// thumbnail: nothing remains, or the replacement has no thumbnail.
func NextThumbnail(agg ir.Aggregate, before ir.Snapshot, deletedIndex int) (next *string, changed bool) {
	if deletedIndex < 0 || deletedIndex >= len(before) || agg.Thumbnail == nil {
		return nil, false
	}
	thumb, ok := before[deletedIndex].Thumbnail()
	if !ok || thumb != *agg.Thumbnail {
		return nil, false
	}

	candidate := 0
	if deletedIndex == 0 {
		candidate = 1
	}
	if candidate >= len(before) {
		return nil, true
	}
	if t, ok := before[candidate].Thumbnail(); ok {
		return &t, true
	}
	return nil, true
}

// CascadeInsertInput describes an add gesture.
type CascadeInsertInput struct {
	Store     remote.Store
	Aggregate ir.Aggregate
	Local     ir.Snapshot
	Payload   ir.IRObject
}

// NewCascadeInsert builds the two-step insert run: create the fragment at the
// end of the collection, then bump the parent's item_count. A parent with no
// thumbnail adopts the new fragment's.
func NewCascadeInsert(in CascadeInsertInput) (*Run, error) {
	if in.Store == nil {
		return nil, fmt.Errorf("%w: no store", ErrInvalidRun)
	}
	before := in.Local.Normalized()
	data := &CascadeData{
		Collection: in.Aggregate.ID,
		Aggregate:  in.Aggregate,
		Before:     before,
		After:      before.Clone(),
		Baseline:   before.Clone(),
		Target: ir.Item{
			Position: len(before),
			Payload:  in.Payload.Clone(),
		},
		TargetIndex: len(before),
	}
	store := in.Store

	// written by the create call, read by Confirm after the settle event
	var created ir.Item

	createItem := Step{
		ID: StepCreateItem,
		Op: remote.OpCreate,
		Build: func(d *CascadeData) (Call, error) {
			parentID := d.Aggregate.ID
			item := d.Target.Clone()
			return func(ctx context.Context) error {
				out, err := store.Create(ctx, parentID, item)
				if err != nil {
					return err
				}
				created = out
				return nil
			}, nil
		},
		Confirm: func(d *CascadeData) {
			d.Target = created.Clone()
			d.After = append(d.After, created.Clone())
			d.Baseline = d.After.Clone()
		},
	}

	updateParent := Step{
		ID: StepUpdateParent,
		Op: remote.OpUpdate,
		Build: func(d *CascadeData) (Call, error) {
			changes := ir.IRObject{ir.FieldItemCount: ir.IRInt(len(d.After))}
			if d.Aggregate.Thumbnail == nil {
				if t, ok := d.Target.Thumbnail(); ok {
					changes[ir.FieldThumbnail] = ir.IRString(t)
				}
			}
			d.ParentChanges = changes
			parentID := d.Aggregate.ID
			sent := changes.Clone()
			return func(ctx context.Context) error {
				return store.Update(ctx, parentID, sent)
			}, nil
		},
		Confirm: func(d *CascadeData) {
			d.Aggregate = d.Aggregate.Apply(d.ParentChanges)
		},
	}

	return NewRun(in.Aggregate.ID, notify.SourceInsert, notify.MessageItemAdded, data,
		createItem, updateParent)
}
