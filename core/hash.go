package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Hasher returns the lowercase hexadecimal digest of data.
type Hasher func(data []byte) string

// Supported hash algorithm names.
const (
	HashSHA256 = "sha256"
	HashSHA3   = "sha3-256"
	HashBLAKE3 = "blake3"
)

// DigestHexLen is the length of every supported digest in hex characters.
const DigestHexLen = 64

// SHA256 is the default block hasher.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA3 hashes with SHA3-256.
func SHA3(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BLAKE3 hashes with 256-bit BLAKE3.
func BLAKE3(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewHasher resolves an algorithm name. An empty name selects sha256.
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HashSHA256:
		return SHA256, nil
	case HashSHA3:
		return SHA3, nil
	case HashBLAKE3:
		return BLAKE3, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHash, name)
	}
}

// MeetsDifficulty reports whether hash starts with difficulty zero characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty > len(hash) {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

func checkDifficulty(difficulty int) error {
	if difficulty < 1 || difficulty > DigestHexLen {
		return fmt.Errorf("%w: %d", ErrInvalidDifficulty, difficulty)
	}
	return nil
}
