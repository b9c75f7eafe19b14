package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndResolve(t *testing.T) {
	l, err := New(Config{}, nil)
	require.NoError(t, err)

	id := l.Record("", "best-of", []Pick{{ID: "a", Utility: 0.9}, {ID: "b", Utility: 0.4}})
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	pick, err := l.Resolve(id, "b")
	require.NoError(t, err)
	assert.Equal(t, 0.4, pick.Utility)

	_, err = l.Resolve(id, "c")
	assert.ErrorIs(t, err, ErrNotSelected)

	_, err = l.Resolve("missing", "a")
	assert.ErrorIs(t, err, ErrSelectionNotFound)

	entry, ok := l.Get(id)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"b": 1}, entry.Reported)
	assert.Equal(t, "best-of", entry.Mode)
}

func TestLedgerEvictsLeastRecentlyUsed(t *testing.T) {
	l, err := New(Config{Size: 2}, nil)
	require.NoError(t, err)

	first := l.Record("s1", "softmax", []Pick{{ID: "a"}})
	l.Record("s2", "softmax", []Pick{{ID: "a"}})
	l.Record("s3", "softmax", []Pick{{ID: "a"}})

	assert.Equal(t, 2, l.Len())
	_, err = l.Resolve(first, "a")
	assert.ErrorIs(t, err, ErrSelectionNotFound)
}

func TestLedgerExpiresEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l, err := New(Config{TTL: time.Minute}, func() time.Time { return now })
	require.NoError(t, err)

	id := l.Record("", "best-of", []Pick{{ID: "a"}})
	now = now.Add(2 * time.Minute)

	_, err = l.Resolve(id, "a")
	assert.ErrorIs(t, err, ErrSelectionNotFound)
	assert.Zero(t, l.Len())
}
