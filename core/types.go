package core

import (
	"encoding/hex"
	"time"

	"github.com/mr-tron/base58"
)

// BlockView is the read-only representation of a block handed to the
// presentation layer.
type BlockView struct {
	Index        int      `json:"index"`
	Timestamp    string   `json:"timestamp"`
	Data         Payload  `json:"data"`
	PreviousHash string   `json:"previousHash"`
	Hash         string   `json:"hash"`
	HashBase58   string   `json:"hashBase58"`
	Nonce        uint64   `json:"nonce"`
	MiningTimeMs *float64 `json:"miningTimeMs"`
	Difficulty   int      `json:"difficulty"`
	Mined        bool     `json:"mined"`
}

// View renders b.
func (b *Block) View() BlockView {
	v := BlockView{
		Index:        b.index,
		Timestamp:    b.timestamp,
		Data:         b.Payload(),
		PreviousHash: b.previousHash,
		Hash:         b.hash,
		HashBase58:   hashBase58(b.hash),
		Nonce:        b.nonce,
		Difficulty:   b.difficulty,
		Mined:        b.Mined(),
	}
	if d, ok := b.MiningTime(); ok {
		ms := float64(d) / float64(time.Millisecond)
		v.MiningTimeMs = &ms
	}
	return v
}

func hashBase58(hash string) string {
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return ""
	}
	return base58.Encode(raw)
}

// Snapshot is the full observable state after a mutation.
type Snapshot struct {
	Version    uint64      `json:"version"`
	Difficulty int         `json:"difficulty"`
	Algorithm  string      `json:"algorithm"`
	Blocks     []BlockView `json:"blocks"`
	Validity   []bool      `json:"validity"`
	Mining     []int       `json:"mining"` // chain indexes with a search in flight
}

// MiningRecord describes one completed search.
type MiningRecord struct {
	ChainIndex int           `json:"chainIndex"`
	BlockIndex int           `json:"blockIndex"`
	Nonce      uint64        `json:"nonce"`
	Hash       string        `json:"hash"`
	Difficulty int           `json:"difficulty"`
	Attempts   uint64        `json:"attempts"`
	Elapsed    time.Duration `json:"elapsed"`
	Algorithm  string        `json:"algorithm"`
	At         time.Time     `json:"at"`
}

// Journal keeps mining records for the lifetime of the process.
type Journal interface {
	Append(rec MiningRecord) error
	Records() ([]MiningRecord, error)
	Reset() error
	Close() error
}
