package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens("test-secret")
	userID := uuid.New()
	deviceID := uuid.New()

	signed, err := tokens.Issue(userID, deviceID)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	identity, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, deviceID, identity.DeviceID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signed, err := NewTokens("secret-a").Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = NewTokens("secret-b").Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewTokens("test-secret").Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
