package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lifxd/internal/db"
)

func openKV(t *testing.T) *KV {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewKV(database.DB)
}

func TestKV_SetGetOverwrite(t *testing.T) {
	kv := openKV(t)

	require.NoError(t, kv.Set("scenes", "last", "abc", 0))
	require.NoError(t, kv.Set("scenes", "count", 3, 0))
	require.NoError(t, kv.Set("scenes", "last", map[string]any{"id": "def"}, 0))

	v, ok, err := kv.Get("scenes", "last")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]any{"id": "def"}, v)

	v, ok, err = kv.Get("scenes", "count")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(3), v, "numbers come back as JSON numbers")

	_, ok, err = kv.Get("other", "last")
	require.NoError(t, err)
	require.False(t, ok, "buckets are separate")

	keys, err := kv.Keys("scenes")
	require.NoError(t, err)
	require.Equal(t, []string{"count", "last"}, keys)

	existed, err := kv.Delete("scenes", "count")
	require.NoError(t, err)
	require.True(t, existed)
	existed, err = kv.Delete("scenes", "count")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestKV_Expiry(t *testing.T) {
	kv := openKV(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set("motion", "hall", true, time.Minute))
	require.NoError(t, kv.Set("motion", "desk", true, 0))

	_, ok, err := kv.Get("motion", "hall")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = kv.Get("motion", "hall")
	require.NoError(t, err)
	require.False(t, ok)

	keys, err := kv.Keys("motion")
	require.NoError(t, err)
	require.Equal(t, []string{"desk"}, keys)

	deleted, err := kv.DeleteExpired()
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
