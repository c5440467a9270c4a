package domaintest

import (
	"testing"

	"github.com/Amund211/mojangdirectory/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func NewAccount(t *testing.T, id uuid.UUID, username string) domain.Account {
	t.Helper()
	account, err := domain.NewAccount(id, username)
	require.NoError(t, err)
	return account
}

func NewAccountHistory(t *testing.T, id uuid.UUID, changes ...domain.NameChange) domain.AccountHistory {
	t.Helper()
	history, err := domain.NewAccountHistory(id, changes)
	require.NoError(t, err)
	return history
}
