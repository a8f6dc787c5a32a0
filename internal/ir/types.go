package ir

import (
	"errors"
	"fmt"
)

// Field names used in change sets and payloads.
const (
	FieldPosition  = "position"
	FieldItemCount = "item_count"
	FieldThumbnail = "thumbnail"
	FieldTitle     = "title"
)

// CollectionKind distinguishes the parents a fragment sequence can live in.
type CollectionKind string

const (
	// KindPlan is a user-authored plan; it carries a representative thumbnail.
	KindPlan CollectionKind = "plan"
	// KindQueue is the user's personal queue of fragments.
	KindQueue CollectionKind = "queue"
)

// Valid reports whether k is a known collection kind.
func (k CollectionKind) Valid() bool {
	return k == KindPlan || k == KindQueue
}

// Item is one session fragment inside a collection.
type Item struct {
	ID       string   `json:"id"`
	Position int      `json:"position"`
	Payload  IRObject `json:"payload"`
}

// Thumbnail returns the fragment's thumbnail reference, if it has one.
func (it Item) Thumbnail() (string, bool) {
	s, ok := it.Payload.GetString(FieldThumbnail)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Clone returns a copy that shares nothing with it.
func (it Item) Clone() Item {
	return Item{ID: it.ID, Position: it.Position, Payload: it.Payload.Clone()}
}

// Snapshot is an ordered list of items: either the current local state or
// the last state confirmed by the remote store. Treat it as immutable; every
// producer hands out a fresh copy.
type Snapshot []Item

// Clone copies the snapshot and its items.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i, it := range s {
		out[i] = it.Clone()
	}
	return out
}

// IDs returns item ids in order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s))
	for i, it := range s {
		ids[i] = it.ID
	}
	return ids
}

// IndexOf returns the index of id, or -1.
func (s Snapshot) IndexOf(id string) int {
	for i, it := range s {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Normalized returns a copy whose positions equal the slice indices.
func (s Snapshot) Normalized() Snapshot {
	out := s.Clone()
	for i := range out {
		out[i].Position = i
	}
	return out
}

// ErrNotDense is wrapped by Validate failures.
var ErrNotDense = errors.New("positions are not a dense permutation")

// Validate checks the at-rest invariant: positions equal slice indices
// 0..n-1 with no duplicates, and ids are unique and non-empty.
func (s Snapshot) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, it := range s {
		if it.ID == "" {
			return fmt.Errorf("index %d: empty id", i)
		}
		if seen[it.ID] {
			return fmt.Errorf("index %d: duplicate id %q", i, it.ID)
		}
		seen[it.ID] = true
		if it.Position != i {
			return fmt.Errorf("%w: item %q at index %d has position %d", ErrNotDense, it.ID, i, it.Position)
		}
	}
	return nil
}

// Aggregate is the denormalized parent record of a collection. ItemCount and
// Thumbnail are derived from the children and only change as the last step
// of a cascading mutation.
type Aggregate struct {
	ID        string         `json:"id"`
	Kind      CollectionKind `json:"kind"`
	OwnerID   string         `json:"owner_id"`
	Title     string         `json:"title"`
	ItemCount int            `json:"item_count"`
	Thumbnail *string        `json:"thumbnail,omitempty"`
}

// ThumbnailValue returns the thumbnail or "" when unset.
func (a Aggregate) ThumbnailValue() string {
	if a.Thumbnail == nil {
		return ""
	}
	return *a.Thumbnail
}

// Apply folds an aggregate change set into a copy of a.
func (a Aggregate) Apply(changes IRObject) Aggregate {
	out := a
	if n, ok := changes.GetInt(FieldItemCount); ok {
		out.ItemCount = int(n)
	}
	if changes.IsNull(FieldThumbnail) {
		out.Thumbnail = nil
	} else if s, ok := changes.GetString(FieldThumbnail); ok {
		out.Thumbnail = &s
	}
	if s, ok := changes.GetString(FieldTitle); ok {
		out.Title = s
	}
	return out
}

// PendingUpdate is one document update emitted by the diff engine and
// consumed by a batch write. It lives only until the write confirms.
type PendingUpdate struct {
	ItemID  string   `json:"item_id"`
	Changes IRObject `json:"changes"`
}

// PositionChange builds the change set that moves an item to pos.
func PositionChange(pos int) IRObject {
	return IRObject{FieldPosition: IRInt(pos)}
}

// Position returns the new position carried by the update, if any.
func (u PendingUpdate) Position() (int, bool) {
	n, ok := u.Changes.GetInt(FieldPosition)
	return int(n), ok
}

// StringPtr is a convenience for optional string fields.
func StringPtr(s string) *string {
	return &s
}

// Digest is SnapshotDigest as a method.
func (s Snapshot) Digest() (string, error) {
	return SnapshotDigest(s)
}
