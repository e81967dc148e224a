package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lifxd/internal/db"
	"github.com/dokzlo13/lifxd/internal/lifx"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewCache(database.DB)
}

func TestLights_RoundTripSorted(t *testing.T) {
	c := openCache(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	err := c.StoreLights([]lifx.Light{
		{ID: "d073d5b", Label: "Desk", Power: "on"},
		{ID: "d073d5a", Label: "Hall", Power: "off"},
	})
	require.NoError(t, err)

	lights, updated, err := c.Lights()
	require.NoError(t, err)
	require.Equal(t, now, updated)
	require.Len(t, lights, 2)
	require.Equal(t, "Hall", lights[0].Label)
	require.True(t, lights[1].IsOn())
}

func TestReplace_PrunesAndBumpsVersion(t *testing.T) {
	c := openCache(t)

	require.NoError(t, c.Replace(KindLight, map[string][]byte{
		"a": []byte(`{"id":"a"}`),
		"b": []byte(`{"id":"b"}`),
	}))
	require.NoError(t, c.Replace(KindLight, map[string][]byte{
		"a": []byte(`{"id":"a","label":"renamed"}`),
	}))

	payload, version, err := c.Get(KindLight, "a")
	require.NoError(t, err)
	require.Equal(t, int64(2), version)
	require.JSONEq(t, `{"id":"a","label":"renamed"}`, string(payload))

	payload, version, err = c.Get(KindLight, "b")
	require.NoError(t, err)
	require.Nil(t, payload)
	require.Zero(t, version)
}

func TestReplace_KindsAreIndependent(t *testing.T) {
	c := openCache(t)

	require.NoError(t, c.StoreScenes([]lifx.Scene{{UUID: "s1", Name: "Evening"}}))
	require.NoError(t, c.StoreLights(nil))

	scenes, _, err := c.All(KindScene)
	require.NoError(t, err)
	require.Len(t, scenes, 1)

	require.NoError(t, c.Clear(KindScene))
	scenes, updated, err := c.All(KindScene)
	require.NoError(t, err)
	require.Empty(t, scenes)
	require.True(t, updated.IsZero())
}
