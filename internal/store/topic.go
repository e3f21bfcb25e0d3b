package store

import (
	"database/sql"
	"log/slog"

	"github.com/olegsv/schoolquiz/internal/model"
)

// UpsertTopic inserts a topic keyed by file name, or refreshes the
// title and mode of an existing one. The enabled flag is preserved on
// update; newly discovered topics start disabled until an admin turns
// them on.
func (s *Store) UpsertTopic(title, fileName string, mode model.TopicMode) error {
	_, err := s.db.Exec(
		`INSERT INTO topics (title, file_name, mode, enabled) VALUES (?, ?, ?, 0)
		 ON CONFLICT(file_name) DO UPDATE SET title = ?, mode = ?`,
		title, fileName, mode, title, mode,
	)
	if err != nil {
		slog.Error("failed to upsert topic", "file", fileName, "error", err)
	}
	return err
}

// GetTopic returns a topic by ID, or nil if not found.
func (s *Store) GetTopic(id int64) (*model.Topic, error) {
	var t model.Topic
	err := s.db.QueryRow(
		`SELECT id, title, file_name, mode, enabled FROM topics WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &t.FileName, &t.Mode, &t.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTopics returns all topics; with enabledOnly it returns only the
// topics students may take.
func (s *Store) ListTopics(enabledOnly bool) ([]model.Topic, error) {
	query := `SELECT id, title, file_name, mode, enabled FROM topics`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY file_name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.FileName, &t.Mode, &t.Enabled); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// ToggleTopicEnabled flips the enabled flag and returns the new value.
func (s *Store) ToggleTopicEnabled(id int64) (bool, error) {
	_, err := s.db.Exec(`UPDATE topics SET enabled = NOT enabled WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	var enabled bool
	err = s.db.QueryRow(`SELECT enabled FROM topics WHERE id = ?`, id).Scan(&enabled)
	return enabled, err
}

// SetAllTopicsEnabled enables or disables every topic at once.
func (s *Store) SetAllTopicsEnabled(enabled bool) error {
	_, err := s.db.Exec(`UPDATE topics SET enabled = ?`, enabled)
	return err
}

// TopicCount returns the total number of topics.
func (s *Store) TopicCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM topics`).Scan(&count)
	return count, err
}
