// Package diff computes the minimal remote update set that turns the last
// confirmed remote ordering into the current local one.
package diff

import (
	"sort"

	"github.com/roach88/planbuilder/internal/ir"
)

// Result is the outcome of comparing two snapshots.
//
// Updates carries position changes for items present on both sides, ordered
// by ascending local position. Added and Removed report membership changes;
// those belong to the saga path and never become reorder updates.
type Result struct {
	Updates []ir.PendingUpdate
	Added   []ir.Item
	Removed []ir.Item
}

// Empty reports whether there is nothing to write and no membership change.
func (r Result) Empty() bool {
	return len(r.Updates) == 0 && !r.MembershipChanged()
}

// MembershipChanged reports whether items were added or removed.
func (r Result) MembershipChanged() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// ComputeUpdates aligns remote and local by item id. An update is emitted
// exactly for ids present in both whose positions differ; unchanged items
// produce nothing. Never fails: a stale remote yields a larger but still
// correct set.
func ComputeUpdates(remote, local ir.Snapshot) Result {
	remotePos := make(map[string]int, len(remote))
	for _, it := range remote {
		remotePos[it.ID] = it.Position
	}
	localIDs := make(map[string]bool, len(local))

	type change struct {
		id  string
		pos int
	}
	var changes []change
	var res Result
	for _, it := range local {
		localIDs[it.ID] = true
		rp, ok := remotePos[it.ID]
		if !ok {
			res.Added = append(res.Added, it.Clone())
			continue
		}
		if rp != it.Position {
			changes = append(changes, change{id: it.ID, pos: it.Position})
		}
	}
	for _, it := range remote {
		if !localIDs[it.ID] {
			res.Removed = append(res.Removed, it.Clone())
		}
	}

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].pos < changes[j].pos })
	if len(changes) > 0 {
		res.Updates = make([]ir.PendingUpdate, len(changes))
		for i, c := range changes {
			res.Updates[i] = ir.PendingUpdate{ItemID: c.id, Changes: ir.PositionChange(c.pos)}
		}
	}
	return res
}
