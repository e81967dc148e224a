// Package storage keeps the last known API view of lights and scenes so the
// daemon can answer reads without spending the request budget, and a small
// key-value store for scripts.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/lifx"
)

// Resource kinds stored in the cache
const (
	KindLight = "light"
	KindScene = "scene"
)

// Cache is a versioned JSON store keyed by (kind, id).
type Cache struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewCache creates a cache over the resource_cache table.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db, now: time.Now}
}

// Get retrieves payload and version for a resource.
// Returns empty payload and version 0 if not found.
func (c *Cache) Get(kind, id string) (payload []byte, version int64, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var payloadStr string
	err = c.db.QueryRow(`
		SELECT payload, version FROM resource_cache
		WHERE kind = ? AND id = ?
	`, kind, id).Scan(&payloadStr, &version)

	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	return []byte(payloadStr), version, nil
}

// Replace swaps every entry of kind for the given payloads in one transaction.
// Versions of surviving ids are incremented.
func (c *Cache) Replace(kind string, payloads map[string][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM resource_cache WHERE kind = ? AND id NOT IN (SELECT value FROM json_each(?))`,
		kind, idsJSON(payloads)); err != nil {
		return fmt.Errorf("failed to prune %s cache: %w", kind, err)
	}

	now := c.now().UTC().Unix()
	for id, payload := range payloads {
		_, err := tx.Exec(`
			INSERT INTO resource_cache (kind, id, payload, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(kind, id) DO UPDATE SET
				payload = excluded.payload,
				version = version + 1,
				updated_at = excluded.updated_at
		`, kind, id, string(payload), now)
		if err != nil {
			return fmt.Errorf("failed to store %s %q: %w", kind, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Debug().Str("kind", kind).Int("count", len(payloads)).Msg("Cache replaced")
	return nil
}

// All returns every payload of a kind keyed by id, plus the newest update time.
func (c *Cache) All(kind string) (map[string][]byte, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT id, payload, updated_at FROM resource_cache WHERE kind = ? ORDER BY id
	`, kind)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	var newest int64
	for rows.Next() {
		var id, payloadStr string
		var updatedAt int64
		if err := rows.Scan(&id, &payloadStr, &updatedAt); err != nil {
			return nil, time.Time{}, err
		}
		payloads[id] = []byte(payloadStr)
		if updatedAt > newest {
			newest = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	var updated time.Time
	if newest > 0 {
		updated = time.Unix(newest, 0).UTC()
	}
	return payloads, updated, nil
}

// Clear removes all entries for a kind. If kind is empty, clears everything.
func (c *Cache) Clear(kind string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if kind == "" {
		_, err = c.db.Exec(`DELETE FROM resource_cache`)
	} else {
		_, err = c.db.Exec(`DELETE FROM resource_cache WHERE kind = ?`, kind)
	}
	return err
}

// StoreLights replaces the cached light list.
func (c *Cache) StoreLights(lights []lifx.Light) error {
	payloads := make(map[string][]byte, len(lights))
	for _, l := range lights {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to marshal light %q: %w", l.ID, err)
		}
		payloads[l.ID] = data
	}
	return c.Replace(KindLight, payloads)
}

// Lights returns the cached light list ordered by id.
func (c *Cache) Lights() ([]lifx.Light, time.Time, error) {
	payloads, updated, err := c.All(KindLight)
	if err != nil {
		return nil, time.Time{}, err
	}
	lights := make([]lifx.Light, 0, len(payloads))
	for id, data := range payloads {
		var l lifx.Light
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, time.Time{}, fmt.Errorf("corrupt cached light %q: %w", id, err)
		}
		lights = append(lights, l)
	}
	sort.Slice(lights, func(i, j int) bool { return lights[i].ID < lights[j].ID })
	return lights, updated, nil
}

// StoreScenes replaces the cached scene list.
func (c *Cache) StoreScenes(scenes []lifx.Scene) error {
	payloads := make(map[string][]byte, len(scenes))
	for _, s := range scenes {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal scene %q: %w", s.UUID, err)
		}
		payloads[s.UUID] = data
	}
	return c.Replace(KindScene, payloads)
}

func idsJSON(payloads map[string][]byte) string {
	ids := make([]string, 0, len(payloads))
	for id := range payloads {
		ids = append(ids, id)
	}
	data, _ := json.Marshal(ids)
	return string(data)
}
