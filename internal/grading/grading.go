// Package grading scores open answers through an external LLM oracle.
//
// All of a topic's open questions go out in a single batched request;
// the oracle replies with a JSON array of 0-100 scores in question
// order, possibly wrapped in prose. Every failure mode (disabled
// grading, transport errors, timeouts, malformed replies) degrades to
// "ungraded", never to an error or a zero score.
package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/olegsv/schoolquiz/internal/model"
)

const defaultTimeout = 60 * time.Second

// Config holds the oracle connection settings. It is passed explicitly
// at construction; nothing is read from ambient state at call time.
type Config struct {
	Enabled        bool
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Grader dispatches open-answer batches to an OpenAI-compatible API.
type Grader struct {
	cfg Config
	api *openai.Client
}

// New creates a Grader from the given config.
func New(cfg Config) *Grader {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Grader{
		cfg: cfg,
		api: openai.NewClientWithConfig(apiCfg),
	}
}

// Enabled reports whether the grader is configured to make oracle calls.
func (g *Grader) Enabled() bool {
	return g.cfg.Enabled && g.cfg.APIKey != ""
}

// Grade scores a topic's open answers in one oracle round trip.
// The result aligns positionally with items; a nil entry means
// "ungraded". When grading is disabled, items is empty, or anything
// goes wrong with the call, Grade returns an empty slice; the caller
// must treat that as "not graded", not "all zero". There is no retry.
func (g *Grader) Grade(ctx context.Context, topic model.Topic, items []model.GradingItem) []*float64 {
	if !g.Enabled() || len(items) == 0 {
		return nil
	}

	timeout := defaultTimeout
	if g.cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(g.cfg.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(topic, items)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		// Cancellation and timeouts land here too; all of them mean
		// the attempt stays ungraded.
		slog.Warn("grading oracle call failed", "topic", topic.Title, "items", len(items), "error", err)
		return nil
	}
	if len(resp.Choices) == 0 {
		slog.Warn("grading oracle returned no choices", "topic", topic.Title)
		return nil
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("grading oracle response", "raw", raw)

	scores := extractScores(raw, len(items))
	if scores == nil {
		slog.Warn("no score array in oracle response", "topic", topic.Title)
	}
	return scores
}

var scoreArrayRegex = regexp.MustCompile(`\[[\d\s,.]+\]`)

// extractScores finds the first bracketed numeric array in the oracle's
// free-form reply and maps it onto n positional slots. Positions past
// the decoded array stay nil; a reply without a decodable array yields
// nil entirely.
func extractScores(text string, n int) []*float64 {
	match := scoreArrayRegex.FindString(text)
	if match == "" {
		return nil
	}

	var raw []float64
	if err := json.Unmarshal([]byte(match), &raw); err != nil || len(raw) == 0 {
		return nil
	}

	scores := make([]*float64, n)
	for i := 0; i < n && i < len(raw); i++ {
		v := clamp(raw[i], 0, 100)
		scores[i] = &v
	}
	return scores
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func buildSystemPrompt() string {
	return `Ты — эксперт по оценке учебных ответов.

Для каждого вопроса оцени степень соответствия ответа ученика эталону по шкале 0–100.
Учитывай: смысловую правильность, полноту, терминологию. Синонимы и пересказ своими словами допускаются.

Верни ТОЛЬКО JSON-массив чисел, например: [85, 90, 70, 0]
Порядок соответствует порядку вопросов. Если ответ пустой или не по теме — 0.`
}

func buildUserPrompt(topic model.Topic, items []model.GradingItem) string {
	var sb strings.Builder
	sb.WriteString("Контекст:\n")
	sb.WriteString("- Тема: " + topic.Title + "\n")
	sb.WriteString("- Файл: " + topic.FileName + "\n\n")
	sb.WriteString("Вопросы и ответы:\n\n")

	for i, item := range items {
		fmt.Fprintf(&sb, "=== Вопрос %d ===\n", i+1)
		sb.WriteString("Вопрос: " + item.Question + "\n")
		sb.WriteString("Ответ ученика: " + item.StudentAnswer + "\n")
		ref := item.CorrectAnswer
		if ref == "" {
			ref = "—"
		}
		sb.WriteString("Эталон: " + ref + "\n\n")
	}

	sb.WriteString("Верни ТОЛЬКО JSON-массив чисел в том же порядке.")
	return sb.String()
}
