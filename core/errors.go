package core

import "errors"

var (
	// ErrInvalidDifficulty is returned for a difficulty outside the searchable range.
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	// ErrIndexOutOfRange is returned when a chain index does not name a block.
	ErrIndexOutOfRange = errors.New("chain index out of range")
	// ErrEncoding is returned when a payload has no canonical encoding.
	ErrEncoding = errors.New("payload encoding")
	// ErrInvalidAmount is returned when an amount edit is not a finite number.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidLength is returned when a chain is initialized with no blocks.
	ErrInvalidLength = errors.New("invalid chain length")
	// ErrStaleProof is returned when a proof no longer matches the block it was found for.
	ErrStaleProof = errors.New("stale proof")
	// ErrUnknownHash is returned for an unsupported hash algorithm name.
	ErrUnknownHash = errors.New("unknown hash algorithm")
)
