package testutil

import (
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/remote"
)

// Items builds a dense snapshot with one item per id. Each item's payload
// carries a thumbnail named "<id>.png".
func Items(ids ...string) ir.Snapshot {
	out := make(ir.Snapshot, len(ids))
	for i, id := range ids {
		out[i] = ir.Item{
			ID:       id,
			Position: i,
			Payload:  ir.IRObject{ir.FieldThumbnail: ir.IRString(id + ".png")},
		}
	}
	return out
}

// Plan builds a plan aggregate consistent with items: the count matches and
// the thumbnail is the first item's, if any.
func Plan(id string, items ir.Snapshot) ir.Aggregate {
	agg := ir.Aggregate{
		ID:        id,
		Kind:      ir.KindPlan,
		OwnerID:   "user-1",
		Title:     "Plan " + id,
		ItemCount: len(items),
	}
	if len(items) > 0 {
		if thumb, ok := items[0].Thumbnail(); ok {
			agg.Thumbnail = ir.StringPtr(thumb)
		}
	}
	return agg
}

// SeededMemory returns an in-memory backend holding one plan with the given
// item ids, wrapped so calls are recorded and faults can be injected.
func SeededMemory(planID string, ids ...string) (*remote.Memory, *remote.Faulty) {
	items := Items(ids...)
	mem := remote.NewMemory()
	mem.Seed(Plan(planID, items), items)
	return mem, remote.NewFaulty(mem)
}
