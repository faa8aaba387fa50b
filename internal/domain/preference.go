package domain

// UserPreference is an immutable snapshot of the persisted user settings.
// A fresh value is produced on every read of the underlying store; it is
// never mutated in place.
type UserPreference struct {
	ShowCompleted bool
	SortOrder     SortOrder
}

// DefaultUserPreference returns the snapshot used before any write exists
// and when the stored state is unreadable but recoverable.
func DefaultUserPreference() UserPreference {
	return UserPreference{
		ShowCompleted: false,
		SortOrder:     SortOrderNone,
	}
}
