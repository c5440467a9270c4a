package domaintest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func NewUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	return id
}

// The undashed form used by the Mojang API
func Compact(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
