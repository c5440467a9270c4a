package domain

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinUsernameLength = 1
	MaxUsernameLength = 16
)

type Account struct {
	uuid     uuid.UUID
	username string
}

func NewAccount(id uuid.UUID, username string) (Account, error) {
	if err := ValidateUsername(username); err != nil {
		return Account{}, fmt.Errorf("invalid account %s: %w", id, err)
	}

	return Account{
		uuid:     id,
		username: username,
	}, nil
}

func (a Account) UUID() uuid.UUID {
	return a.uuid
}

// The case-corrected username
func (a Account) Username() string {
	return a.username
}

func (a Account) String() string {
	return fmt.Sprintf("%s (%s)", a.username, a.uuid)
}

func ValidateUsername(username string) error {
	length := utf8.RuneCountInString(username)
	if length < MinUsernameLength || length > MaxUsernameLength {
		return fmt.Errorf(
			"%w: username must be between %d and %d characters, got %d ('%s')",
			ErrValidation, MinUsernameLength, MaxUsernameLength, length, username,
		)
	}
	return nil
}
