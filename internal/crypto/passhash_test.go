package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	require.NoError(t, err)
	require.Len(t, a, n)

	b, err := RandBytes(n)
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b), "two subsequent RandBytes(%d) are equal", n)
	require.False(t, bytes.Equal(a, make([]byte, n)), "RandBytes returned all zeros")
}

func TestHashPassword_DeterministicOnSameInput(t *testing.T) {
	t.Parallel()

	pw := []byte("p@ssw0rd")
	salt := []byte("NaCl-16-bytes?")

	h1 := HashPassword(pw, salt)
	require.NotEmpty(t, h1)
	require.Equal(t, h1, HashPassword(pw, salt))
	require.NotEqual(t, h1, HashPassword(pw, []byte("another-salt----")))
	require.NotEqual(t, h1, HashPassword([]byte("p@ssw0rd!"), salt))
}

func TestNewPasswordHash_Verifies(t *testing.T) {
	t.Parallel()

	pw := []byte("correct horse battery staple")
	hash, salt, err := NewPasswordHash(pw)
	require.NoError(t, err)
	require.Len(t, salt, SaltLen)

	require.True(t, VerifyPassword(pw, salt, hash))
	require.False(t, VerifyPassword([]byte("wrong"), salt, hash))
	require.False(t, VerifyPassword(pw, []byte("wrong-salt"), hash))
	require.False(t, VerifyPassword([]byte{}, salt, hash))
}

func TestNewToken_HexAndUnique(t *testing.T) {
	t.Parallel()

	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	raw, err := hex.DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, TokenLen)
}

func TestHashToken_Stable(t *testing.T) {
	t.Parallel()

	require.Equal(t, HashToken("abc"), HashToken("abc"))
	require.NotEqual(t, HashToken("abc"), HashToken("abd"))
	require.Len(t, HashToken("abc"), 32)
}
