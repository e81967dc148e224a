package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lifxd/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestHasCompleted(t *testing.T) {
	l := openLedger(t)

	require.False(t, l.HasCompleted(""))
	require.False(t, l.HasCompleted("evening/1735372800"))

	require.NoError(t, l.Append(EventActionFailed, "evening/1735372800", map[string]any{"error_kind": "transport"}))
	require.False(t, l.HasCompleted("evening/1735372800"), "a failure is not a completion")

	require.NoError(t, l.Append(EventActionCompleted, "evening/1735372800", map[string]any{"action": "toggle"}))
	require.True(t, l.HasCompleted("evening/1735372800"))
}

func TestAppend_FirstCompletionWins(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.Append(EventActionCompleted, "k1", map[string]any{"attempt": 1}))
	require.NoError(t, l.Append(EventActionCompleted, "k1", map[string]any{"attempt": 2}))

	entries, err := l.GetByType(EventActionCompleted, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, float64(1), entries[0].Payload["attempt"])
}

func TestAppend_EmptyKeysNeverCollide(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.Append(EventActionCompleted, "", nil))
	require.NoError(t, l.Append(EventActionCompleted, "", nil))

	entries, err := l.GetByType(EventActionCompleted, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Nil(t, entries[0].Payload)
}

func TestLastCompleted(t *testing.T) {
	l := openLedger(t)
	base := time.Date(2026, 3, 1, 22, 15, 0, 0, time.UTC)

	last, err := l.LastCompleted("evening")
	require.NoError(t, err)
	require.True(t, last.IsZero())

	l.now = func() time.Time { return base }
	require.NoError(t, l.AppendWithSource(EventActionCompleted, "evening/1", "schedule", "evening", nil))
	l.now = func() time.Time { return base.Add(24 * time.Hour) }
	require.NoError(t, l.AppendWithSource(EventActionCompleted, "evening/2", "schedule", "evening", nil))
	require.NoError(t, l.AppendWithSource(EventActionCompleted, "other/1", "schedule", "other", nil))

	last, err = l.LastCompleted("evening")
	require.NoError(t, err)
	require.Equal(t, base.Add(24*time.Hour), last)
}

func TestDeleteOlderThan(t *testing.T) {
	l := openLedger(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	l.now = func() time.Time { return now.Add(-40 * 24 * time.Hour) }
	require.NoError(t, l.Append(EventActionCompleted, "old", nil))
	l.now = func() time.Time { return now.Add(-time.Hour) }
	require.NoError(t, l.Append(EventActionCompleted, "new", nil))

	l.now = func() time.Time { return now }
	n, err := l.DeleteOlderThan(30 * 24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.False(t, l.HasCompleted("old"))
	require.True(t, l.HasCompleted("new"))
}

func TestRecent_PreservesSourceFields(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.AppendWithSource(EventActionFailed, "wh-1", "webhook", "", map[string]any{"action": "pulse"}))

	entries, err := l.Recent(5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, EventActionFailed, entries[0].EventType)
	require.Equal(t, "webhook", entries[0].Source)
	require.Equal(t, "wh-1", entries[0].IdempotencyKey)
	require.Empty(t, entries[0].DefID)
	require.Equal(t, "pulse", entries[0].Payload["action"])
}
