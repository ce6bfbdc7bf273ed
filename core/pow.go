package core

import (
	"context"
	"strconv"
	"time"
)

// ctxCheckInterval is how many nonces are tried between cancellation checks.
const ctxCheckInterval = 1024

// Preimage is a snapshot of the hashed block fields, minus the nonce.
type Preimage struct {
	Index        int
	Timestamp    string
	Payload      []byte // canonical payload encoding
	PreviousHash string
}

// prefix returns index + timestamp + payload + previousHash.
func (p Preimage) prefix() []byte {
	buf := make([]byte, 0, 24+len(p.Timestamp)+len(p.Payload)+len(p.PreviousHash))
	buf = strconv.AppendInt(buf, int64(p.Index), 10)
	buf = append(buf, p.Timestamp...)
	buf = append(buf, p.Payload...)
	buf = append(buf, p.PreviousHash...)
	return buf
}

// Bytes returns the full hash input for the given nonce.
func (p Preimage) Bytes(nonce uint64) []byte {
	return strconv.AppendUint(p.prefix(), nonce, 10)
}

// Digest hashes the preimage with nonce.
func (p Preimage) Digest(h Hasher, nonce uint64) string {
	return h(p.Bytes(nonce))
}

// Proof is the outcome of a successful search.
type Proof struct {
	Nonce      uint64
	Hash       string
	Difficulty int
	Attempts   uint64
	Elapsed    time.Duration
}

// Search tries nonces 0, 1, 2, ... until the digest of pre has difficulty
// leading zeros. The first satisfying nonce is returned, so the result is
// reproducible for a fixed hasher. There is no iteration cap; ctx is the
// only way to stop a search early.
func Search(ctx context.Context, h Hasher, pre Preimage, difficulty int) (Proof, error) {
	if err := checkDifficulty(difficulty); err != nil {
		return Proof{}, err
	}

	prefix := pre.prefix()
	buf := make([]byte, len(prefix), len(prefix)+20)
	copy(buf, prefix)

	start := time.Now()
	for nonce := uint64(0); ; nonce++ {
		if nonce%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Proof{}, err
			}
		}
		hash := h(strconv.AppendUint(buf[:len(prefix)], nonce, 10))
		if MeetsDifficulty(hash, difficulty) {
			return Proof{
				Nonce:      nonce,
				Hash:       hash,
				Difficulty: difficulty,
				Attempts:   nonce + 1,
				Elapsed:    time.Since(start),
			}, nil
		}
	}
}
