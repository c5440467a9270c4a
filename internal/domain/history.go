package domain

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/google/uuid"
)

// A single entry in a name history.
// ChangedToAt is 0 for the original name of the account.
type NameChange struct {
	ChangedToAt int64
	Username    string
}

// Every username an account has had, ordered by the time of the change
type AccountHistory struct {
	uuid    uuid.UUID
	changes []NameChange
}

// Builds the history for the account with the given uuid.
//
// The changes may be given in any order. Fails if there are no changes, if any
// username is invalid, if any timestamp is negative, or if two changes share a timestamp.
func NewAccountHistory(id uuid.UUID, changes []NameChange) (AccountHistory, error) {
	if len(changes) == 0 {
		return AccountHistory{}, fmt.Errorf("%w: no name history for %s", ErrValidation, id)
	}

	seen := make(map[int64]string, len(changes))
	sorted := make([]NameChange, 0, len(changes))
	for _, change := range changes {
		if err := ValidateUsername(change.Username); err != nil {
			return AccountHistory{}, fmt.Errorf("invalid name history for %s: %w", id, err)
		}

		if change.ChangedToAt < 0 {
			return AccountHistory{}, fmt.Errorf(
				"%w: invalid name change time %d ('%s') for %s",
				ErrValidation, change.ChangedToAt, change.Username, id,
			)
		}

		if previous, ok := seen[change.ChangedToAt]; ok {
			return AccountHistory{}, fmt.Errorf(
				"%w: duplicate name change time %d ('%s' and '%s') for %s",
				ErrValidation, change.ChangedToAt, previous, change.Username, id,
			)
		}
		seen[change.ChangedToAt] = change.Username

		sorted = append(sorted, change)
	}

	slices.SortFunc(sorted, func(a, b NameChange) int {
		return cmp.Compare(a.ChangedToAt, b.ChangedToAt)
	})

	return AccountHistory{
		uuid:    id,
		changes: sorted,
	}, nil
}

func (h AccountHistory) UUID() uuid.UUID {
	return h.uuid
}

func (h AccountHistory) OriginalUsername() string {
	return h.changes[0].Username
}

func (h AccountHistory) CurrentUsername() string {
	return h.changes[len(h.changes)-1].Username
}

// Returns the username the account had at the given timestamp.
//
// Timestamps at or before zero, and timestamps before the first recorded change,
// resolve to the original username.
func (h AccountHistory) UsernameAt(timestamp int64) string {
	if timestamp <= 0 {
		return h.OriginalUsername()
	}

	// Index of the first change strictly after timestamp
	after, _ := slices.BinarySearchFunc(h.changes, timestamp, func(change NameChange, target int64) int {
		if change.ChangedToAt <= target {
			return -1
		}
		return 1
	})
	if after == 0 {
		return h.OriginalUsername()
	}

	return h.changes[after-1].Username
}

func (h AccountHistory) Len() int {
	return len(h.changes)
}

// Iterates over (changedToAt, username) pairs, oldest first
func (h AccountHistory) Changes() iter.Seq2[int64, string] {
	return func(yield func(int64, string) bool) {
		for _, change := range h.changes {
			if !yield(change.ChangedToAt, change.Username) {
				return
			}
		}
	}
}

// Returns a copy of the changes, oldest first
func (h AccountHistory) NameChanges() []NameChange {
	return slices.Clone(h.changes)
}
