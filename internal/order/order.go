// Package order maintains a dense, zero-based sort position over the members
// of a scope (a user's plans of one type, or a plan's tasks). The same
// arithmetic is mirrored by the SQL in the store layer so that an in-memory
// scope and a persisted scope always agree.
package order

import "fmt"

// ErrInvalidRange reports a move whose positions fall outside the scope.
type ErrInvalidRange struct {
	Count int
}

func (e *ErrInvalidRange) Error() string {
	return fmt.Sprintf("oldOrder and newOrder should be less than %d", e.Count)
}

// Append returns the sort position for a member added to a scope that
// currently holds count members. New members always go to the end.
func Append(count int) int {
	return count
}

// Compact returns the adjusted position of a member after the member at
// removedOrder leaves the scope. Members past the removed slot shift left;
// everything else is untouched.
func Compact(position, removedOrder int) int {
	if position > removedOrder {
		return position - 1
	}
	return position
}

// Shift returns the position a member at position ends up at when the member
// at oldOrder moves to newOrder. Applying Shift to every member of a scope
// preserves density: the moved member lands on newOrder, members between the
// two slots shift by one toward the vacated slot, the rest stay put.
func Shift(position, oldOrder, newOrder int) int {
	switch {
	case position == oldOrder:
		return newOrder
	case position > oldOrder && position <= newOrder:
		return position - 1
	case position >= newOrder && position < oldOrder:
		return position + 1
	default:
		return position
	}
}

// ValidateMove checks move bounds against the current member count.
func ValidateMove(oldOrder, newOrder, count int) error {
	if oldOrder < 0 || newOrder < 0 || oldOrder > count || newOrder > count {
		return &ErrInvalidRange{Count: count}
	}
	return nil
}

// Move rewrites the positions slice in place, moving the member at oldOrder
// to newOrder. A move onto itself is a no-op.
func Move(positions []int, oldOrder, newOrder int) {
	if oldOrder == newOrder {
		return
	}
	for i, p := range positions {
		positions[i] = Shift(p, oldOrder, newOrder)
	}
}
