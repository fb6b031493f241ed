package services

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionToken(t *testing.T) {
	token, err := newSessionToken()
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	other, err := newSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestSessionKeyShapes(t *testing.T) {
	userID := uuid.New()

	assert.Equal(t, "session:abc", sessionKey("abc"))
	assert.Equal(t, "user_session:"+userID.String(), userSessionKey(userID.String()))
}
