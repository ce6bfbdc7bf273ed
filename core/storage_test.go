package core

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testJournal(t *testing.T, j Journal) {
	t.Helper()

	records, err := j.Records()
	require.NoError(t, err)
	require.Empty(t, records)

	// More than 256 records so byte-ordered keys are exercised past one byte.
	for i := 0; i < 300; i++ {
		require.NoError(t, j.Append(MiningRecord{
			ChainIndex: i % 3,
			BlockIndex: i%3 + 1,
			Nonce:      uint64(i),
			Difficulty: 1 + i%2,
			Attempts:   uint64(i + 1),
			Elapsed:    time.Duration(i) * time.Microsecond,
			Algorithm:  HashSHA256,
		}))
	}

	records, err = j.Records()
	require.NoError(t, err)
	require.Len(t, records, 300)
	for i, rec := range records {
		require.Equal(t, uint64(i), rec.Nonce)
	}

	require.NoError(t, j.Reset())
	records, err = j.Records()
	require.NoError(t, err)
	require.Empty(t, records)

	require.NoError(t, j.Append(MiningRecord{Nonce: 42}))
	records, err = j.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(42), records[0].Nonce)
}

func TestLevelJournal(t *testing.T) {
	j, err := NewLevelJournal()
	require.NoError(t, err)
	testJournal(t, j)
	require.NoError(t, j.Close())
}

func TestBadgerJournal(t *testing.T) {
	j, err := NewBadgerJournal(nil)
	require.NoError(t, err)
	testJournal(t, j)

	dir := j.dir
	require.NoError(t, j.Close())
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}
