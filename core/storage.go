package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var recordPrefix = []byte("rec:")

// recordKey orders records by sequence number under plain byte comparison.
func recordKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)
	return key
}

// LevelJournal is a Journal on LevelDB backed by memory storage.
type LevelJournal struct {
	mu  sync.Mutex
	db  *leveldb.DB
	seq uint64
}

// NewLevelJournal opens an empty in-memory LevelDB journal.
func NewLevelJournal() (*LevelJournal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %v", err)
	}
	return &LevelJournal{db: db}, nil
}

func (j *LevelJournal) Append(rec MiningRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %v", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.db.Put(recordKey(j.seq), data, nil); err != nil {
		return fmt.Errorf("failed to store record: %v", err)
	}
	j.seq++
	return nil
}

func (j *LevelJournal) Records() ([]MiningRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var records []MiningRecord
	iter := j.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		var rec MiningRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %v", err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %v", err)
	}
	return records, nil
}

func (j *LevelJournal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	iter := j.db.NewIterator(nil, nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %v", err)
	}
	if err := j.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to clear journal: %v", err)
	}
	j.seq = 0
	return nil
}

func (j *LevelJournal) Close() error {
	return j.db.Close()
}
