package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionConstructors(t *testing.T) {
	a := Account{ID: "acc-1", UserID: "u", Domain: "https://example.com"}

	assert.Equal(t, SessionNone, NoSession().Status)
	assert.Equal(t, Account{}, NoSession().Account)

	locked := AuthorizationRequired(a)
	assert.Equal(t, SessionAuthorizationRequired, locked.Status)
	assert.Equal(t, a, locked.Account)

	open := Authorized(a)
	assert.Equal(t, SessionAuthorized, open.Status)
	assert.Equal(t, a, open.Account)
}

func TestSessionStatus_String(t *testing.T) {
	assert.Equal(t, "none", SessionNone.String())
	assert.Equal(t, "authorization_required", SessionAuthorizationRequired.String())
	assert.Equal(t, "authorized", SessionAuthorized.String())
	assert.Equal(t, "unknown", SessionStatus(42).String())
}

func TestNewAccountID_IsUUID(t *testing.T) {
	id := NewAccountID()
	_, err := uuid.Parse(id.String())
	require.NoError(t, err)
	assert.NotEqual(t, id, NewAccountID())
}
