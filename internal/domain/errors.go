package domain

import "errors"

// Domain errors returned by the preference state machinery.

var (
	// ErrInvalidSortOrder indicates a stored sort-order name that matches
	// no known variant.
	ErrInvalidSortOrder = errors.New("invalid sort order")
)
