package strutils

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const VALID_HEX_DIGITS = "0123456789abcdefABCDEF"

const STRIPPED_UUID_LENGTH = 32

var ErrInvalidUUIDFormat = errors.New("invalid uuid format")

// Byte offsets of the groups in a stripped UUID (8-4-4-4-12)
var uuidGroupBounds = [...]int{0, 8, 12, 16, 20, STRIPPED_UUID_LENGTH}

// Converts the 32 character hex form returned by the Mojang API into a uuid.UUID
//
// No dashes are accepted in the input. Case is left to uuid.Parse.
func UUIDFromCompact(compact string) (uuid.UUID, error) {
	if len(compact) != STRIPPED_UUID_LENGTH {
		return uuid.UUID{}, fmt.Errorf("%w: compact UUID must be %d characters, got %d. input: '%s'", ErrInvalidUUIDFormat, STRIPPED_UUID_LENGTH, len(compact), compact)
	}

	for _, char := range compact {
		if !strings.ContainsRune(VALID_HEX_DIGITS, char) {
			return uuid.UUID{}, fmt.Errorf("%w: invalid character in UUID. input: '%s'", ErrInvalidUUIDFormat, compact)
		}
	}

	var dashed strings.Builder
	dashed.Grow(STRIPPED_UUID_LENGTH + len(uuidGroupBounds) - 2)
	for i := 1; i < len(uuidGroupBounds); i++ {
		if i > 1 {
			dashed.WriteByte('-')
		}
		dashed.WriteString(compact[uuidGroupBounds[i-1]:uuidGroupBounds[i]])
	}

	id, err := uuid.Parse(dashed.String())
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %w", ErrInvalidUUIDFormat, err)
	}
	return id, nil
}

// Removes dashes, converts all characters to lowercase and returns the dashed form
func NormalizeUUID(input string) (string, error) {
	var stripped strings.Builder
	stripped.Grow(STRIPPED_UUID_LENGTH)

	for _, char := range input {
		if char == '-' {
			continue
		} else if strings.ContainsRune(VALID_HEX_DIGITS, char) {
			stripped.WriteRune(unicode.ToLower(char))
		} else {
			return "", fmt.Errorf("%w: invalid character in UUID. input: '%s'", ErrInvalidUUIDFormat, input)
		}
	}
	if stripped.Len() != STRIPPED_UUID_LENGTH {
		return "", fmt.Errorf("%w: normalized UUID has incorrect length. input: '%s'", ErrInvalidUUIDFormat, input)
	}

	id, err := UUIDFromCompact(stripped.String())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
