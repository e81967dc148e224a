package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// KV is a persistent key-value store for scripts, grouped in buckets.
// Values are stored as JSON; expired keys read as missing.
type KV struct {
	db  *sql.DB
	now func() time.Time
}

// NewKV creates a store over the kv_store table.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db, now: time.Now}
}

// Set stores value under (bucket, key). A positive ttl makes the key expire.
func (s *KV) Set(bucket, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	now := s.now().UTC()
	var expiresAt *int64
	if ttl > 0 {
		exp := now.Add(ttl).Unix()
		expiresAt = &exp
	}

	_, err = s.db.Exec(`
		INSERT INTO kv_store (bucket, key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, bucket, key, string(data), expiresAt, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to store %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get returns the decoded value and whether the key exists.
func (s *KV) Get(bucket, key string) (any, bool, error) {
	var raw string
	err := s.db.QueryRow(`
		SELECT value FROM kv_store
		WHERE bucket = ? AND key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, bucket, key, s.now().UTC().Unix()).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s/%s: %w", bucket, key, err)
	}
	return value, true, nil
}

// Delete removes a key and reports whether it existed.
func (s *KV) Delete(bucket, key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM kv_store WHERE bucket = ? AND key = ?`, bucket, key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Keys returns the live keys of a bucket, sorted.
func (s *KV) Keys(bucket string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT key FROM kv_store
		WHERE bucket = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
	`, bucket, s.now().UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteExpired removes expired keys from every bucket.
func (s *KV) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
