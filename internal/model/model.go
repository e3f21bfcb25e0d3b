package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a regular user who takes tests.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin manages topics, imports and users.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// TopicMode determines how a topic's questions are presented and scored.
type TopicMode string

const (
	// ModeTest is a graded multiple-choice test.
	ModeTest TopicMode = "test"
	// ModeOpen is a free-text test, optionally graded against reference answers.
	ModeOpen TopicMode = "open"
	// ModeSelfStudy is an ungraded list of reflection prompts.
	ModeSelfStudy TopicMode = "selfstudy"
)

// ParseTopicMode maps a MODE: directive value to a TopicMode.
// Unrecognized values fall back to ModeTest.
func ParseTopicMode(s string) TopicMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "test":
		return ModeTest
	case "open":
		return ModeOpen
	case "self", "selfstudy":
		return ModeSelfStudy
	default:
		return ModeTest
	}
}

// AnswerOption is one selectable choice of a multiple-choice question.
type AnswerOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is one quiz question parsed from a test file.
// Options is empty for open and self-study topics. CorrectAnswer is the
// reference answer from the answer-key section of an open topic, if any.
type Question struct {
	Text          string         `json:"text"`
	Options       []AnswerOption `json:"options,omitempty"`
	CorrectAnswer string         `json:"correct_answer,omitempty"`
}

// IsMultipleCorrect reports whether more than one option is marked correct,
// which switches the question to set-based multi-select scoring.
func (q Question) IsMultipleCorrect() bool {
	count := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			count++
		}
	}
	return count > 1
}

// CorrectIndices returns the indices of all options marked correct,
// in option order.
func (q Question) CorrectIndices() []int {
	var idx []int
	for i, o := range q.Options {
		if o.IsCorrect {
			idx = append(idx, i)
		}
	}
	return idx
}

// Topic is a named test unit backed by one source text file.
type Topic struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	FileName string    `json:"file_name"`
	Mode     TopicMode `json:"mode"`
	Enabled  bool      `json:"enabled"`
}

// QuestionResult records the outcome of one question within an attempt.
// ScorePercent is nil while an open answer is ungraded; nil is distinct
// from a zero score.
type QuestionResult struct {
	Question        string   `json:"question"`
	Selected        []string `json:"selected,omitempty"`
	Correct         []string `json:"correct,omitempty"`
	IsCorrect       *bool    `json:"is_correct,omitempty"`
	StudentAnswer   string   `json:"student_answer,omitempty"`
	ReferenceAnswer string   `json:"reference_answer,omitempty"`
	ScorePercent    *float64 `json:"score_percent,omitempty"`
}

// TestAttempt is one completed pass through a topic by a user.
type TestAttempt struct {
	ID             string           `json:"id"`
	UserID         int64            `json:"user_id"`
	TopicID        int64            `json:"topic_id"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	TotalQuestions int              `json:"total_questions"`
	CorrectAnswers *int             `json:"correct_answers,omitempty"`
	ScorePercent   *float64         `json:"score_percent,omitempty"`
	Results        []QuestionResult `json:"results,omitempty"`
}

// GradingItem is one open-answer unit submitted to the grading oracle.
type GradingItem struct {
	Question      string
	StudentAnswer string
	CorrectAnswer string
}

// AppConfig holds runtime server parameters set via CLI flags.
type AppConfig struct {
	TestsDir      string // Root directory holding the *.txt test files
	Lang          string // Default UI language (en, ru)
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
}
