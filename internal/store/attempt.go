package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/olegsv/schoolquiz/internal/model"
)

// CreateAttempt stores a finished attempt with its typed per-question
// results marshalled into a JSON column.
func (s *Store) CreateAttempt(a model.TestAttempt) error {
	results, err := json.Marshal(a.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO attempts (id, user_id, topic_id, started_at, completed_at, total_questions, correct_answers, score_percent, results_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.TopicID, a.StartedAt, a.CompletedAt, a.TotalQuestions, a.CorrectAnswers, a.ScorePercent, string(results),
	)
	return err
}

// GetAttempt returns an attempt by ID with its results unmarshalled,
// or nil if not found.
func (s *Store) GetAttempt(id string) (*model.TestAttempt, error) {
	var a model.TestAttempt
	var results string
	err := s.db.QueryRow(
		`SELECT id, user_id, topic_id, started_at, completed_at, total_questions, correct_answers, score_percent, results_json
		 FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &a.TopicID, &a.StartedAt, &a.CompletedAt, &a.TotalQuestions, &a.CorrectAnswers, &a.ScorePercent, &results)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(results), &a.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results for attempt %s: %w", id, err)
	}
	return &a, nil
}

// ListAttemptsForUser returns a user's attempts, most recent first.
func (s *Store) ListAttemptsForUser(userID int64) ([]model.TestAttempt, error) {
	return s.listAttempts(`WHERE user_id = ?`, userID)
}

// LastAttemptsByTopic returns each topic's most recent attempt for a
// user, keyed by topic ID. The index page shows these as "last result".
func (s *Store) LastAttemptsByTopic(userID int64) (map[int64]model.TestAttempt, error) {
	attempts, err := s.ListAttemptsForUser(userID)
	if err != nil {
		return nil, err
	}
	last := make(map[int64]model.TestAttempt)
	for _, a := range attempts {
		if _, seen := last[a.TopicID]; !seen {
			last[a.TopicID] = a
		}
	}
	return last, nil
}

// ApplyGrades merges oracle scores into an attempt's stored results in
// a single transaction. Scores align positionally with the result list;
// only present (non-nil) entries overwrite, and the attempt's aggregate
// becomes the mean of the present per-question scores. Attempts the
// oracle skipped entirely stay untouched and re-gradable.
func (s *Store) ApplyGrades(attemptID string, scores []*float64) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(`SELECT results_json FROM attempts WHERE id = ?`, attemptID).Scan(&raw)
	if err != nil {
		return fmt.Errorf("load attempt %s: %w", attemptID, err)
	}

	var results []model.QuestionResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return fmt.Errorf("unmarshal results for attempt %s: %w", attemptID, err)
	}

	merged := make([]model.QuestionResult, len(results))
	copy(merged, results)

	var sum float64
	var graded int
	for i := range merged {
		if i < len(scores) && scores[i] != nil {
			v := round2(*scores[i])
			merged[i].ScorePercent = &v
		}
		if merged[i].ScorePercent != nil {
			sum += *merged[i].ScorePercent
			graded++
		}
	}
	if graded == 0 {
		return nil
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	mean := round2(sum / float64(graded))

	_, err = tx.Exec(
		`UPDATE attempts SET results_json = ?, score_percent = ? WHERE id = ?`,
		string(out), mean, attemptID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) listAttempts(where string, args ...any) ([]model.TestAttempt, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, topic_id, started_at, completed_at, total_questions, correct_answers, score_percent, results_json
		 FROM attempts `+where+` ORDER BY started_at DESC`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.TestAttempt
	for rows.Next() {
		var a model.TestAttempt
		var results string
		if err := rows.Scan(&a.ID, &a.UserID, &a.TopicID, &a.StartedAt, &a.CompletedAt, &a.TotalQuestions, &a.CorrectAnswers, &a.ScorePercent, &results); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(results), &a.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results for attempt %s: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
