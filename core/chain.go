package core

import (
	"context"
	"fmt"
	"time"
)

// GenesisPreviousHash is the previous-hash sentinel of the first block.
const GenesisPreviousHash = "0"

// TimestampLayout is the ISO-8601 UTC layout used for block timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Chain is an ordered, fixed-length sequence of blocks. Chain index i
// holds the block with Index i+1. Blocks are never added, removed or
// reordered after initialization.
type Chain struct {
	blocks     []*Block
	difficulty int
	hasher     Hasher
	now        func() time.Time
}

type ChainOption func(*Chain)

// WithHasher selects the hash function for every block of the chain.
func WithHasher(h Hasher) ChainOption {
	return func(c *Chain) { c.hasher = h }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

// NewChain builds n linked, unmined blocks that all carry genesis as payload.
func NewChain(n int, genesis Payload, difficulty int, opts ...ChainOption) (*Chain, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	if err := checkDifficulty(difficulty); err != nil {
		return nil, err
	}

	c := &Chain{
		difficulty: difficulty,
		hasher:     SHA256,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.blocks = make([]*Block, 0, n)
	prev := GenesisPreviousHash
	for i := 0; i < n; i++ {
		ts := c.now().UTC().Format(TimestampLayout)
		b, err := NewBlock(i+1, ts, genesis, prev, difficulty, c.hasher)
		if err != nil {
			return nil, fmt.Errorf("create block %d: %w", i+1, err)
		}
		c.blocks = append(c.blocks, b)
		prev = b.Hash()
	}
	return c, nil
}

func (c *Chain) Len() int        { return len(c.blocks) }
func (c *Chain) Difficulty() int { return c.difficulty }

// Block returns the block at chain index i.
func (c *Chain) Block(i int) (*Block, error) {
	if err := c.checkIndex(i); err != nil {
		return nil, err
	}
	return c.blocks[i], nil
}

// Blocks returns the chain's blocks in order. The slice is a copy; the
// blocks are not.
func (c *Chain) Blocks() []*Block {
	return append([]*Block(nil), c.blocks...)
}

// EditPayload replaces the payload at i and relinks every later block.
func (c *Chain) EditPayload(i int, p Payload) ([]bool, error) {
	if err := c.checkIndex(i); err != nil {
		return nil, err
	}
	if err := c.blocks[i].UpdateData(p); err != nil {
		return nil, fmt.Errorf("edit block %d: %w", i+1, err)
	}
	c.PropagateFrom(i)
	return c.Validate(), nil
}

// EditField applies a single field edit from user input at i.
func (c *Chain) EditField(i int, field, value string) ([]bool, error) {
	if err := c.checkIndex(i); err != nil {
		return nil, err
	}
	p, err := c.blocks[i].Payload().With(field, value)
	if err != nil {
		return nil, fmt.Errorf("edit block %d: %w", i+1, err)
	}
	return c.EditPayload(i, p)
}

// MineAt mines the block at i with its own difficulty and relinks every
// later block without mining them.
func (c *Chain) MineAt(i int) ([]bool, error) {
	return c.MineAtContext(context.Background(), i)
}

// MineAtContext is MineAt with cancellation. A canceled search leaves the
// chain unchanged.
func (c *Chain) MineAtContext(ctx context.Context, i int) ([]bool, error) {
	if err := c.checkIndex(i); err != nil {
		return nil, err
	}
	b := c.blocks[i]
	if err := b.MineContext(ctx, b.Difficulty()); err != nil {
		return nil, fmt.Errorf("mine block %d: %w", i+1, err)
	}
	c.PropagateFrom(i)
	return c.Validate(), nil
}

// ApplyProof installs a proof found off-line for the block at i and
// relinks every later block.
func (c *Chain) ApplyProof(i int, p Proof) ([]bool, error) {
	if err := c.checkIndex(i); err != nil {
		return nil, err
	}
	if err := c.blocks[i].ApplyProof(p); err != nil {
		return nil, err
	}
	c.PropagateFrom(i)
	return c.Validate(), nil
}

// PropagateFrom points every block after k at its predecessor's current
// hash. Each relinked block has its proof of work reset.
func (c *Chain) PropagateFrom(k int) {
	if k < 0 {
		k = 0
	}
	for i := k + 1; i < len(c.blocks); i++ {
		c.blocks[i].Relink(c.blocks[i-1].Hash())
	}
}

// SetDifficulty changes the chain difficulty and the difficulty every
// block is judged by. Hashes are untouched.
func (c *Chain) SetDifficulty(difficulty int) error {
	if err := checkDifficulty(difficulty); err != nil {
		return err
	}
	c.difficulty = difficulty
	for _, b := range c.blocks {
		// cannot fail: difficulty was checked above
		_ = b.SetDifficulty(difficulty)
	}
	return nil
}

// Validate reports, per block, whether its hash meets its difficulty and,
// past the first block, whether it links to its predecessor's current hash.
func (c *Chain) Validate() []bool {
	out := make([]bool, len(c.blocks))
	for i, b := range c.blocks {
		ok := b.Mined()
		if i > 0 && b.PreviousHash() != c.blocks[i-1].Hash() {
			ok = false
		}
		out[i] = ok
	}
	return out
}

// Valid reports whether every block is valid.
func (c *Chain) Valid() bool {
	for _, ok := range c.Validate() {
		if !ok {
			return false
		}
	}
	return true
}

func (c *Chain) checkIndex(i int) error {
	if i < 0 || i >= len(c.blocks) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, len(c.blocks))
	}
	return nil
}
