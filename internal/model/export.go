package model

import "time"

// AttemptsExport is the top-level JSON structure for the export command.
type AttemptsExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Topics     []TopicExport   `json:"topics"`
	Attempts   []AttemptExport `json:"attempts"`
}

// TopicExport holds one topic's metadata for export.
type TopicExport struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	FileName string    `json:"file_name"`
	Mode     TopicMode `json:"mode"`
}

// AttemptExport holds one attempt with its per-question results for export.
type AttemptExport struct {
	AttemptID      string           `json:"attempt_id"`
	Username       string           `json:"username"`
	DisplayName    string           `json:"display_name"`
	TopicID        int64            `json:"topic_id"`
	TopicTitle     string           `json:"topic_title"`
	Mode           TopicMode        `json:"mode"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	TotalQuestions int              `json:"total_questions"`
	CorrectAnswers *int             `json:"correct_answers,omitempty"`
	ScorePercent   *float64         `json:"score_percent,omitempty"`
	Results        []QuestionResult `json:"results,omitempty"`
}
