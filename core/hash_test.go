package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSHA256KnownVector(t *testing.T) {
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", SHA256([]byte("abc")))
}

func TestNewHasher(t *testing.T) {
	for _, name := range []string{"", "sha256", "SHA3-256", "blake3"} {
		h, err := NewHasher(name)
		require.NoError(t, err, name)
		digest := h([]byte("abc"))
		require.Len(t, digest, DigestHexLen, name)
		require.Equal(t, digest, h([]byte("abc")), name)
	}

	sha3, _ := NewHasher(HashSHA3)
	blake, _ := NewHasher(HashBLAKE3)
	require.NotEqual(t, SHA256([]byte("abc")), sha3([]byte("abc")))
	require.NotEqual(t, sha3([]byte("abc")), blake([]byte("abc")))

	_, err := NewHasher("md5")
	require.ErrorIs(t, err, ErrUnknownHash)
}

func TestMeetsDifficulty(t *testing.T) {
	require.True(t, MeetsDifficulty("00ab", 2))
	require.True(t, MeetsDifficulty("000b", 2))
	require.False(t, MeetsDifficulty("0a0b", 2))
	require.False(t, MeetsDifficulty("00", 3))
	require.True(t, MeetsDifficulty("abc", 0))
}
