package store

import (
	"fmt"
	"time"

	"github.com/olegsv/schoolquiz/internal/model"
)

// ExportAll builds an export of every topic and every attempt, joined
// with topic and user data, for the CLI export command.
func (s *Store) ExportAll() (*model.AttemptsExport, error) {
	topics, err := s.ListTopics(false)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	topicByID := make(map[int64]model.Topic, len(topics))
	var topicExports []model.TopicExport
	for _, t := range topics {
		topicByID[t.ID] = t
		topicExports = append(topicExports, model.TopicExport{
			ID:       t.ID,
			Title:    t.Title,
			FileName: t.FileName,
			Mode:     t.Mode,
		})
	}

	attempts, err := s.listAttempts("")
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	var out []model.AttemptExport
	for _, a := range attempts {
		user, err := s.GetUserByID(a.UserID)
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", a.UserID, err)
		}

		var username, displayName string
		if user != nil {
			username = user.Username
			displayName = user.DisplayName
		}

		topic := topicByID[a.TopicID]
		out = append(out, model.AttemptExport{
			AttemptID:      a.ID,
			Username:       username,
			DisplayName:    displayName,
			TopicID:        a.TopicID,
			TopicTitle:     topic.Title,
			Mode:           topic.Mode,
			StartedAt:      a.StartedAt,
			CompletedAt:    a.CompletedAt,
			TotalQuestions: a.TotalQuestions,
			CorrectAnswers: a.CorrectAnswers,
			ScorePercent:   a.ScorePercent,
			Results:        a.Results,
		})
	}

	return &model.AttemptsExport{
		ExportedAt: time.Now().UTC(),
		Topics:     topicExports,
		Attempts:   out,
	}, nil
}
