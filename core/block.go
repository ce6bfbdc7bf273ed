package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Block is one entry of the simulated chain. The hash is a cached value
// derived from the other fields; every mutation goes through setLink or
// install, which recompute it.
type Block struct {
	index        int
	timestamp    string
	payload      []byte // canonical encoding
	previousHash string
	nonce        uint64
	hash         string
	difficulty   int
	miningTime   *time.Duration
	hasher       Hasher
}

// NewBlock creates an unmined block with nonce 0. A nil hasher selects SHA256.
func NewBlock(index int, timestamp string, payload Payload, previousHash string, difficulty int, hasher Hasher) (*Block, error) {
	if index < 1 {
		return nil, fmt.Errorf("%w: block index %d must be positive", ErrIndexOutOfRange, index)
	}
	if err := checkDifficulty(difficulty); err != nil {
		return nil, err
	}
	encoded, err := payload.Canonical()
	if err != nil {
		return nil, err
	}
	if hasher == nil {
		hasher = SHA256
	}

	b := &Block{
		index:      index,
		timestamp:  timestamp,
		difficulty: difficulty,
		hasher:     hasher,
	}
	b.setLink(encoded, previousHash)
	return b, nil
}

func (b *Block) Index() int           { return b.index }
func (b *Block) Timestamp() string    { return b.timestamp }
func (b *Block) PreviousHash() string { return b.previousHash }
func (b *Block) Nonce() uint64        { return b.nonce }
func (b *Block) Hash() string         { return b.hash }
func (b *Block) Difficulty() int      { return b.difficulty }

// Payload returns a copy of the block's data.
func (b *Block) Payload() Payload {
	var p Payload
	// b.payload was produced by Canonical, so it always decodes.
	_ = json.Unmarshal(b.payload, &p)
	return p
}

// MiningTime returns how long the last successful mine took. ok is false
// when the block has not been mined since it was last invalidated.
func (b *Block) MiningTime() (d time.Duration, ok bool) {
	if b.miningTime == nil {
		return 0, false
	}
	return *b.miningTime, true
}

// Preimage snapshots the hashed fields for an off-line search.
func (b *Block) Preimage() Preimage {
	return Preimage{
		Index:        b.index,
		Timestamp:    b.timestamp,
		Payload:      append([]byte(nil), b.payload...),
		PreviousHash: b.previousHash,
	}
}

// CalculateHash recomputes the digest from the current fields. It mutates nothing.
func (b *Block) CalculateHash() string {
	return b.Preimage().Digest(b.hasher, b.nonce)
}

// Mined reports whether the cached hash satisfies the block's difficulty.
func (b *Block) Mined() bool {
	return MeetsDifficulty(b.hash, b.difficulty)
}

// UpdateData replaces the payload and invalidates proof of work.
// On error the block is unchanged.
func (b *Block) UpdateData(p Payload) error {
	encoded, err := p.Canonical()
	if err != nil {
		return err
	}
	b.setLink(encoded, b.previousHash)
	return nil
}

// Relink points the block at a new predecessor hash and invalidates proof
// of work. It does not mine.
func (b *Block) Relink(previousHash string) {
	b.setLink(b.payload, previousHash)
}

// SetDifficulty changes the difficulty the block is judged by. The hash is untouched.
func (b *Block) SetDifficulty(difficulty int) error {
	if err := checkDifficulty(difficulty); err != nil {
		return err
	}
	b.difficulty = difficulty
	return nil
}

// Mine blocks until a nonce satisfying difficulty is found.
func (b *Block) Mine(difficulty int) error {
	return b.MineContext(context.Background(), difficulty)
}

// MineContext is Mine with cancellation. A canceled search leaves the
// block unchanged; the next attempt starts again from nonce 0.
func (b *Block) MineContext(ctx context.Context, difficulty int) error {
	proof, err := Search(ctx, b.hasher, b.Preimage(), difficulty)
	if err != nil {
		return err
	}
	b.install(proof)
	return nil
}

// ApplyProof installs a proof found by Search over an earlier Preimage.
// It fails with ErrStaleProof if the block's fields have changed since.
func (b *Block) ApplyProof(p Proof) error {
	if err := checkDifficulty(p.Difficulty); err != nil {
		return err
	}
	if !MeetsDifficulty(p.Hash, p.Difficulty) || b.Preimage().Digest(b.hasher, p.Nonce) != p.Hash {
		return fmt.Errorf("%w: block %d", ErrStaleProof, b.index)
	}
	b.install(p)
	return nil
}

func (b *Block) setLink(payload []byte, previousHash string) {
	b.payload = payload
	b.previousHash = previousHash
	b.nonce = 0
	b.miningTime = nil
	b.hash = b.CalculateHash()
}

func (b *Block) install(p Proof) {
	elapsed := p.Elapsed
	b.difficulty = p.Difficulty
	b.nonce = p.Nonce
	b.miningTime = &elapsed
	b.hash = b.CalculateHash()
}
