package sequence

import "errors"

var (
	// ErrIndexOutOfRange is returned for indices outside [0, len).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrItemNotFound is returned when an id is not in the model.
	ErrItemNotFound = errors.New("item not found")

	// ErrDuplicateItem is returned when inserting an id already present.
	ErrDuplicateItem = errors.New("item already in sequence")

	// ErrNotPermutation is returned by Reorder when the ids are not exactly
	// the current membership.
	ErrNotPermutation = errors.New("order is not a permutation of current items")
)
