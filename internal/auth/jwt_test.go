package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	j := NewJWT("test-secret")

	tok, err := j.Sign("alice")
	require.NoError(t, err)

	username, err := j.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "alice", username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewJWT("right").Sign("alice")
	require.NoError(t, err)

	_, err = NewJWT("wrong").Verify(tok)
	require.Error(t, err)
}

func TestResetTokenIsNotASessionToken(t *testing.T) {
	j := NewJWT("test-secret")

	tok, err := j.ResetToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = j.Verify(tok)
	require.Error(t, err)

	username, err := j.VerifyResetToken(tok)
	require.NoError(t, err)
	require.Equal(t, "alice", username)
}

func TestResetTokenExpires(t *testing.T) {
	j := NewJWT("test-secret")

	tok, err := j.ResetToken("alice", -time.Minute)
	require.NoError(t, err)

	_, err = j.VerifyResetToken(tok)
	require.Error(t, err)
}
