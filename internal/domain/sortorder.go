package domain

import (
	"fmt"
)

// SortOrder describes how the to-do item list is ordered. The four values
// are the combination states of two independent toggles: sort by deadline
// and sort by priority.
type SortOrder string

const (
	SortOrderNone                  SortOrder = "NONE"
	SortOrderByDeadline            SortOrder = "BY_DEADLINE"
	SortOrderByPriority            SortOrder = "BY_PRIORITY"
	SortOrderByDeadlineAndPriority SortOrder = "BY_DEADLINE_AND_PRIORITY"
)

// NewSortOrder validates and creates a SortOrder from its stored name.
// The names are a stable wire format shared with the legacy settings
// consumer, so unknown names are rejected rather than coerced.
func NewSortOrder(s string) (SortOrder, error) {
	order := SortOrder(s)

	switch order {
	case SortOrderNone, SortOrderByDeadline, SortOrderByPriority, SortOrderByDeadlineAndPriority:
		return order, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortOrder, s)
	}
}

// CombineSortOrder maps the (deadline, priority) toggle pair to its
// SortOrder. The mapping is a bijection over the four combinations.
func CombineSortOrder(deadline, priority bool) SortOrder {
	switch {
	case deadline && priority:
		return SortOrderByDeadlineAndPriority
	case deadline:
		return SortOrderByDeadline
	case priority:
		return SortOrderByPriority
	default:
		return SortOrderNone
	}
}

// ByDeadline reports whether the deadline toggle is on in this order.
func (o SortOrder) ByDeadline() bool {
	return o == SortOrderByDeadline || o == SortOrderByDeadlineAndPriority
}

// ByPriority reports whether the priority toggle is on in this order.
func (o SortOrder) ByPriority() bool {
	return o == SortOrderByPriority || o == SortOrderByDeadlineAndPriority
}

// WithDeadline returns the order with the deadline toggle set to enable,
// leaving the priority toggle as is.
func (o SortOrder) WithDeadline(enable bool) SortOrder {
	return CombineSortOrder(enable, o.ByPriority())
}

// WithPriority returns the order with the priority toggle set to enable,
// leaving the deadline toggle as is.
func (o SortOrder) WithPriority(enable bool) SortOrder {
	return CombineSortOrder(o.ByDeadline(), enable)
}

// String returns the stored name of the order.
func (o SortOrder) String() string {
	return string(o)
}
