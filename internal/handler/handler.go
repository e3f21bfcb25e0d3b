// Package handler exposes the quiz service over HTTP as a JSON API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/olegsv/schoolquiz/internal/evaluate"
	"github.com/olegsv/schoolquiz/internal/grading"
	appI18n "github.com/olegsv/schoolquiz/internal/i18n"
	"github.com/olegsv/schoolquiz/internal/importer"
	"github.com/olegsv/schoolquiz/internal/model"
	"github.com/olegsv/schoolquiz/internal/store"
	"github.com/olegsv/schoolquiz/internal/testfile"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	files  *testfile.Service
	imp    *importer.Service
	grader *grading.Grader
	config model.AppConfig

	// gradeCtx parents every background grading call so that server
	// shutdown cancels in-flight oracle requests; a cancelled call
	// degrades to an ungraded attempt like any other oracle failure.
	gradeCtx context.Context
}

// New creates a new Handler. gradeCtx bounds the lifetime of background
// grading tasks.
func New(gradeCtx context.Context, s *store.Store, files *testfile.Service, imp *importer.Service, grader *grading.Grader, cfg model.AppConfig) *Handler {
	return &Handler{
		store:    s,
		files:    files,
		imp:      imp,
		grader:   grader,
		config:   cfg,
		gradeCtx: gradeCtx,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/topics", h.handleTopics)
		r.Get("/topics/{topicID}", h.handleTopic)
		r.Post("/topics/{topicID}/submit", h.handleSubmit)
		r.Get("/attempts/{attemptID}", h.handleAttempt)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))

			r.Post("/sync", h.handleSync)
			r.Post("/topics/{topicID}/toggle", h.handleToggleTopic)
			r.Post("/topics/enable-all", h.handleSetAllTopics(true))
			r.Post("/topics/disable-all", h.handleSetAllTopics(false))
			r.Post("/import/parse", h.handleImportParse)
			r.Post("/import/apply", h.handleImportApply)
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

// topicView is a topic list entry with the user's last result, if any.
type topicView struct {
	model.Topic
	Folder           string     `json:"folder"`
	LastScorePercent *float64   `json:"last_score_percent,omitempty"`
	LastCompletedAt  *time.Time `json:"last_completed_at,omitempty"`
}

// questionView is a question as shown to the student: correct-answer
// markers and reference answers are stripped.
type questionView struct {
	Text        string   `json:"text"`
	Options     []string `json:"options,omitempty"`
	MultiSelect bool     `json:"multi_select"`
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	topics, err := h.store.ListTopics(user.Role != model.UserRoleAdmin)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	last, err := h.store.LastAttemptsByTopic(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]topicView, 0, len(topics))
	for _, t := range topics {
		dir := path.Dir(t.FileName)
		if dir == "." {
			dir = ""
		}
		v := topicView{
			Topic:  t,
			Folder: testfile.DisplayPath(dir, appI18n.T(r.Context(), "RootFolder")),
		}
		if a, ok := last[t.ID]; ok {
			v.LastScorePercent = a.ScorePercent
			v.LastCompletedAt = a.CompletedAt
		}
		views = append(views, v)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleTopic(w http.ResponseWriter, r *http.Request) {
	topic, ok := h.topicForRequest(w, r)
	if !ok {
		return
	}

	mode, questions, err := h.files.Load(topic.FileName)
	if err != nil {
		h.respondLoadError(w, r, topic.FileName, err)
		return
	}

	views := make([]questionView, 0, len(questions))
	for _, q := range questions {
		v := questionView{Text: q.Text, MultiSelect: q.IsMultipleCorrect()}
		for _, o := range q.Options {
			v.Options = append(v.Options, o.Text)
		}
		views = append(views, v)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"topic":     topic,
		"mode":      mode,
		"questions": views,
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	topic, ok := h.topicForRequest(w, r)
	if !ok {
		return
	}

	mode, questions, err := h.files.Load(topic.FileName)
	if err != nil {
		h.respondLoadError(w, r, topic.FileName, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return
	}

	result := evaluate.Evaluate(mode, questions, answersFromForm(r, mode, len(questions)))

	now := time.Now()
	attempt := model.TestAttempt{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		TopicID:        topic.ID,
		StartedAt:      now,
		CompletedAt:    &now,
		TotalQuestions: len(questions),
		CorrectAnswers: result.CorrectCount,
		ScorePercent:   result.ScorePercent,
		Results:        result.Details,
	}
	if err := h.store.CreateAttempt(attempt); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The attempt is persisted ungraded first; the oracle call runs in
	// the background so submission never waits on the external service.
	if mode == model.ModeOpen && h.grader.Enabled() {
		h.gradeInBackground(attempt.ID, *topic, result.GradingItems)
	}

	respondJSON(w, http.StatusOK, attempt)
}

func (h *Handler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	attempt, err := h.store.GetAttempt(chi.URLParam(r, "attemptID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if attempt == nil || (attempt.UserID != user.ID && user.Role != model.UserRoleAdmin) {
		respondError(w, http.StatusNotFound, "attempt not found")
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

// gradeInBackground dispatches one batched oracle call for the attempt
// and merges the returned scores. All failures leave the attempt
// ungraded; re-running a sync-triggered grading later is the only retry.
func (h *Handler) gradeInBackground(attemptID string, topic model.Topic, items []model.GradingItem) {
	go func() {
		scores := h.grader.Grade(h.gradeCtx, topic, items)
		if len(scores) == 0 {
			slog.Info("attempt left ungraded", "attempt", attemptID, "topic", topic.Title)
			return
		}
		if err := h.store.ApplyGrades(attemptID, scores); err != nil {
			slog.Error("failed to merge grades", "attempt", attemptID, "error", err)
			return
		}
		slog.Info("graded open answers", "attempt", attemptID, "items", len(items))
	}()
}

// answersFromForm collects q{i} form values into an evaluate.Answers.
// Multiple-choice values are option indices; open-mode values are the
// free-text answers. Unparsable indices are dropped here and judged
// incorrect downstream.
func answersFromForm(r *http.Request, mode model.TopicMode, numQuestions int) evaluate.Answers {
	answers := evaluate.Answers{
		Selected: make(map[int][]int),
		Text:     make(map[int]string),
	}
	for i := 0; i < numQuestions; i++ {
		values := r.Form["q"+strconv.Itoa(i)]
		if len(values) == 0 {
			continue
		}
		if mode == model.ModeOpen {
			answers.Text[i] = values[0]
			continue
		}
		for _, v := range values {
			idx, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			answers.Selected[i] = append(answers.Selected[i], idx)
		}
	}
	return answers
}

// topicForRequest resolves the topicID URL parameter and enforces the
// enabled flag for non-admin users.
func (h *Handler) topicForRequest(w http.ResponseWriter, r *http.Request) (*model.Topic, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "topicID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid topic ID")
		return nil, false
	}

	topic, err := h.store.GetTopic(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if topic == nil {
		respondError(w, http.StatusNotFound, "topic not found")
		return nil, false
	}

	user := model.UserFromContext(r.Context())
	if !topic.Enabled && user.Role != model.UserRoleAdmin {
		respondError(w, http.StatusForbidden, appI18n.T(r.Context(), "TopicDisabled"))
		return nil, false
	}
	return topic, true
}

// respondLoadError maps a missing backing file to a localized
// "test unavailable" response instead of a generic server error.
func (h *Handler) respondLoadError(w http.ResponseWriter, r *http.Request, fileName string, err error) {
	if errors.Is(err, testfile.ErrNotFound) {
		slog.Warn("topic file missing", "file", fileName)
		respondError(w, http.StatusNotFound, appI18n.T(r.Context(), "TestUnavailable"))
		return
	}
	slog.Error("failed to load test file", "file", fileName, "error", err)
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
