package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
)

// BadgerJournal is a Journal on a badger database in a temporary
// directory. The directory is removed on Close.
type BadgerJournal struct {
	mu  sync.Mutex
	dir string
	db  *badger.DB
	seq uint64
}

// NewBadgerJournal opens an empty badger journal. logger may be nil.
func NewBadgerJournal(logger *slog.Logger) (*BadgerJournal, error) {
	dir, err := os.MkdirTemp("", "chainsim-journal-")
	if err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %v", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir).
		WithValueLogFileSize(16 << 20).
		WithLogger(badgerLogger{logger.With("component", "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open journal: %v", err)
	}
	return &BadgerJournal{dir: dir, db: db}, nil
}

func (j *BadgerJournal) Append(rec MiningRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %v", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(j.seq), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store record: %v", err)
	}
	j.seq++
	return nil
}

func (j *BadgerJournal) Records() ([]MiningRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var records []MiningRecord
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec MiningRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record: %v", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (j *BadgerJournal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.db.DropAll(); err != nil {
		return fmt.Errorf("failed to clear journal: %v", err)
	}
	j.seq = 0
	return nil
}

func (j *BadgerJournal) Close() error {
	err := j.db.Close()
	if rmErr := os.RemoveAll(j.dir); err == nil {
		err = rmErr
	}
	return err
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}
