package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	require.NotEqual(t, "hunter22", hash)

	require.True(t, ComparePassword(hash, "hunter22"))
	require.False(t, ComparePassword(hash, "hunter23"))
}
