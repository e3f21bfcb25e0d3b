package store

import (
	"database/sql"
	"time"
)

const lastSyncKey = "last_sync_at"

// SetSetting upserts a key-value pair in the app_settings table.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetSetting returns the value for a settings key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// RecordSync stores the time of the latest topic sync.
func (s *Store) RecordSync(at time.Time) error {
	return s.SetSetting(lastSyncKey, at.UTC().Format(time.RFC3339))
}

// LastSync returns the time of the latest topic sync, or the zero time
// if no sync has run yet.
func (s *Store) LastSync() (time.Time, error) {
	v, err := s.GetSetting(lastSyncKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}
