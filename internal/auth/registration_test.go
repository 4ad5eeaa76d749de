package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationToken_roundTrip(t *testing.T) {
	svc := NewRegistrationTokenService("test-secret")

	token, err := svc.SignToken("123456721")
	require.NoError(t, err)

	uid, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "123456721", uid)
}

func TestRegistrationToken_wrongSecret(t *testing.T) {
	token, err := NewRegistrationTokenService("secret-a").SignToken("123456721")
	require.NoError(t, err)

	_, err = NewRegistrationTokenService("secret-b").VerifyToken(token)
	assert.Error(t, err)
}

func TestRegistrationToken_garbage(t *testing.T) {
	_, err := NewRegistrationTokenService("secret").VerifyToken("not.a.token")
	assert.Error(t, err)
}
