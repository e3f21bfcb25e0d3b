package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/olegsv/schoolquiz/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestTopic(t *testing.T, s *Store, title, fileName string, mode model.TopicMode) model.Topic {
	t.Helper()
	if err := s.UpsertTopic(title, fileName, mode); err != nil {
		t.Fatalf("insertTestTopic: %v", err)
	}
	topics, err := s.ListTopics(false)
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	for _, topic := range topics {
		if topic.FileName == fileName {
			return topic
		}
	}
	t.Fatalf("topic %s not found after upsert", fileName)
	return model.Topic{}
}

func insertTestAttempt(t *testing.T, s *Store, topicID int64, results []model.QuestionResult) model.TestAttempt {
	t.Helper()
	now := time.Now()
	a := model.TestAttempt{
		ID:             uuid.NewString(),
		UserID:         1,
		TopicID:        topicID,
		StartedAt:      now,
		CompletedAt:    &now,
		TotalQuestions: len(results),
		Results:        results,
	}
	if err := s.CreateAttempt(a); err != nil {
		t.Fatalf("insertTestAttempt: %v", err)
	}
	return a
}

func TestTopicUpsert(t *testing.T) {
	s := newTestStore(t)

	topic := insertTestTopic(t, s, "Capitals", "geo/capitals.txt", model.ModeTest)
	if topic.Enabled {
		t.Error("new topics must start disabled")
	}

	// Re-sync refreshes title and mode but keeps the enabled flag.
	if _, err := s.ToggleTopicEnabled(topic.ID); err != nil {
		t.Fatalf("ToggleTopicEnabled: %v", err)
	}
	if err := s.UpsertTopic("Capitals v2", "geo/capitals.txt", model.ModeOpen); err != nil {
		t.Fatalf("UpsertTopic: %v", err)
	}

	got, err := s.GetTopic(topic.ID)
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if got == nil {
		t.Fatal("topic disappeared after upsert")
	}
	if got.Title != "Capitals v2" || got.Mode != model.ModeOpen {
		t.Errorf("topic after upsert = %+v", got)
	}
	if !got.Enabled {
		t.Error("upsert must preserve the enabled flag")
	}

	count, err := s.TopicCount()
	if err != nil {
		t.Fatalf("TopicCount: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (no duplicate row)", count)
	}
}

func TestListTopicsEnabledOnly(t *testing.T) {
	s := newTestStore(t)
	a := insertTestTopic(t, s, "A", "a.txt", model.ModeTest)
	insertTestTopic(t, s, "B", "b.txt", model.ModeOpen)

	if _, err := s.ToggleTopicEnabled(a.ID); err != nil {
		t.Fatalf("ToggleTopicEnabled: %v", err)
	}

	enabled, err := s.ListTopics(true)
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(enabled) != 1 || enabled[0].FileName != "a.txt" {
		t.Errorf("enabled topics = %+v", enabled)
	}

	if err := s.SetAllTopicsEnabled(true); err != nil {
		t.Fatalf("SetAllTopicsEnabled: %v", err)
	}
	enabled, err = s.ListTopics(true)
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("got %d enabled topics, want 2", len(enabled))
	}
}

func TestGetTopicNotFound(t *testing.T) {
	s := newTestStore(t)
	topic, err := s.GetTopic(9999)
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if topic != nil {
		t.Errorf("expected nil, got %+v", topic)
	}
}

func TestAttemptRoundTrip(t *testing.T) {
	s := newTestStore(t)
	topic := insertTestTopic(t, s, "T", "t.txt", model.ModeTest)

	yes := true
	score := 50.0
	correct := 1
	now := time.Now()
	a := model.TestAttempt{
		ID:             uuid.NewString(),
		UserID:         1,
		TopicID:        topic.ID,
		StartedAt:      now,
		CompletedAt:    &now,
		TotalQuestions: 2,
		CorrectAnswers: &correct,
		ScorePercent:   &score,
		Results: []model.QuestionResult{
			{Question: "q1", Selected: []string{"a"}, Correct: []string{"a"}, IsCorrect: &yes},
			{Question: "q2", Selected: []string{"b"}, Correct: []string{"c"}},
		},
	}
	if err := s.CreateAttempt(a); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	got, err := s.GetAttempt(a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got == nil {
		t.Fatal("attempt not found")
	}
	if got.ScorePercent == nil || *got.ScorePercent != 50.0 {
		t.Errorf("ScorePercent = %v", got.ScorePercent)
	}
	if len(got.Results) != 2 || got.Results[0].Question != "q1" {
		t.Errorf("Results = %+v", got.Results)
	}
	if got.Results[0].IsCorrect == nil || !*got.Results[0].IsCorrect {
		t.Error("IsCorrect lost in round trip")
	}
}

func TestGetAttemptNotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetAttempt("no-such-id")
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestLastAttemptsByTopic(t *testing.T) {
	s := newTestStore(t)
	topic := insertTestTopic(t, s, "T", "t.txt", model.ModeTest)

	older := model.TestAttempt{
		ID:        uuid.NewString(),
		UserID:    1,
		TopicID:   topic.ID,
		StartedAt: time.Now().Add(-time.Hour),
	}
	if err := s.CreateAttempt(older); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	newer := insertTestAttempt(t, s, topic.ID, nil)

	last, err := s.LastAttemptsByTopic(1)
	if err != nil {
		t.Fatalf("LastAttemptsByTopic: %v", err)
	}
	if got := last[topic.ID].ID; got != newer.ID {
		t.Errorf("last attempt = %s, want %s", got, newer.ID)
	}
}

func TestApplyGrades(t *testing.T) {
	s := newTestStore(t)
	topic := insertTestTopic(t, s, "Open", "open.txt", model.ModeOpen)

	a := insertTestAttempt(t, s, topic.ID, []model.QuestionResult{
		{Question: "q1", StudentAnswer: "a1", ReferenceAnswer: "r1"},
		{Question: "q2", StudentAnswer: "a2", ReferenceAnswer: "r2"},
		{Question: "q3", StudentAnswer: "a3"},
	})

	s80, s90 := 80.0, 90.0
	// Third slot ungraded: the oracle's array was short.
	if err := s.ApplyGrades(a.ID, []*float64{&s80, &s90, nil}); err != nil {
		t.Fatalf("ApplyGrades: %v", err)
	}

	got, err := s.GetAttempt(a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.Results[0].ScorePercent == nil || *got.Results[0].ScorePercent != 80 {
		t.Errorf("result 0 score = %v", got.Results[0].ScorePercent)
	}
	if got.Results[1].ScorePercent == nil || *got.Results[1].ScorePercent != 90 {
		t.Errorf("result 1 score = %v", got.Results[1].ScorePercent)
	}
	if got.Results[2].ScorePercent != nil {
		t.Errorf("result 2 must stay ungraded, got %v", *got.Results[2].ScorePercent)
	}
	// Aggregate is the mean of present scores only.
	if got.ScorePercent == nil || *got.ScorePercent != 85 {
		t.Errorf("attempt score = %v, want 85", got.ScorePercent)
	}
}

func TestApplyGradesEmpty(t *testing.T) {
	s := newTestStore(t)
	topic := insertTestTopic(t, s, "Open", "open.txt", model.ModeOpen)
	a := insertTestAttempt(t, s, topic.ID, []model.QuestionResult{
		{Question: "q1", StudentAnswer: "a1"},
	})

	// Oracle failure: nothing to merge, attempt stays ungraded.
	if err := s.ApplyGrades(a.ID, nil); err != nil {
		t.Fatalf("ApplyGrades: %v", err)
	}
	if err := s.ApplyGrades(a.ID, []*float64{nil}); err != nil {
		t.Fatalf("ApplyGrades: %v", err)
	}

	got, err := s.GetAttempt(a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.ScorePercent != nil {
		t.Errorf("score = %v, want unset", *got.ScorePercent)
	}
	if got.Results[0].ScorePercent != nil {
		t.Error("per-question score must stay unset")
	}
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id, err := s.CreateUser(model.User{
		Username:     "anna",
		DisplayName:  "Anna",
		PasswordHash: "hash",
		Role:         model.UserRoleStudent,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := s.GetUserByUsername("anna")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id || u.Role != model.UserRoleStudent {
		t.Errorf("user = %+v", u)
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, err = s.GetUserByID(id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.Active {
		t.Error("user should be inactive after toggle")
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateUser(model.User{Username: "u", PasswordHash: "h", Role: model.UserRoleAdmin, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != id {
		t.Errorf("session = %+v", sess)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Error("session should be gone after delete")
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetSetting("missing")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "" {
		t.Errorf("missing key = %q, want empty", v)
	}

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.RecordSync(at); err != nil {
		t.Fatalf("RecordSync: %v", err)
	}
	got, err := s.LastSync()
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("LastSync = %v, want %v", got, at)
	}
}

func TestExportAll(t *testing.T) {
	s := newTestStore(t)
	topic := insertTestTopic(t, s, "T", "t.txt", model.ModeTest)
	if _, err := s.CreateUser(model.User{Username: "anna", DisplayName: "Anna", PasswordHash: "h", Role: model.UserRoleStudent, Active: true}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	insertTestAttempt(t, s, topic.ID, []model.QuestionResult{{Question: "q"}})

	export, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(export.Topics) != 1 || len(export.Attempts) != 1 {
		t.Fatalf("export = %d topics, %d attempts", len(export.Topics), len(export.Attempts))
	}
	a := export.Attempts[0]
	if a.Username != "anna" || a.TopicTitle != "T" || len(a.Results) != 1 {
		t.Errorf("attempt export = %+v", a)
	}
}
