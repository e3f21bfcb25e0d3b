package evaluate

import (
	"reflect"
	"testing"

	"github.com/olegsv/schoolquiz/internal/model"
)

func mcQuestion(text string, correct ...int) model.Question {
	q := model.Question{Text: text}
	for i := 0; i < 4; i++ {
		q.Options = append(q.Options, model.AnswerOption{Text: text + " opt" + string(rune('A'+i))})
	}
	for _, c := range correct {
		q.Options[c].IsCorrect = true
	}
	return q
}

func TestEvaluateSingleChoice(t *testing.T) {
	questions := []model.Question{
		mcQuestion("q1", 1),
		mcQuestion("q2", 0),
	}

	tests := []struct {
		name        string
		selected    map[int][]int
		wantCorrect int
		wantScore   float64
	}{
		{"all correct", map[int][]int{0: {1}, 1: {0}}, 2, 100},
		{"half correct", map[int][]int{0: {1}, 1: {3}}, 1, 50},
		{"all wrong", map[int][]int{0: {0}, 1: {2}}, 0, 0},
		{"unanswered", map[int][]int{}, 0, 0},
		{"invalid index", map[int][]int{0: {99}, 1: {-1}}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(model.ModeTest, questions, Answers{Selected: tt.selected})
			if res.CorrectCount == nil || *res.CorrectCount != tt.wantCorrect {
				t.Errorf("CorrectCount = %v, want %d", res.CorrectCount, tt.wantCorrect)
			}
			if res.ScorePercent == nil || *res.ScorePercent != tt.wantScore {
				t.Errorf("ScorePercent = %v, want %v", res.ScorePercent, tt.wantScore)
			}
			if len(res.Details) != len(questions) {
				t.Errorf("got %d details, want %d", len(res.Details), len(questions))
			}
		})
	}
}

func TestEvaluateDuplicateOptionText(t *testing.T) {
	// Two options with identical display text; only position decides.
	q := model.Question{
		Text: "pick the second 'same'",
		Options: []model.AnswerOption{
			{Text: "same"},
			{Text: "same", IsCorrect: true},
		},
	}

	res := Evaluate(model.ModeTest, []model.Question{q}, Answers{Selected: map[int][]int{0: {0}}})
	if *res.Details[0].IsCorrect {
		t.Error("selecting index 0 must be wrong even though texts match")
	}

	res = Evaluate(model.ModeTest, []model.Question{q}, Answers{Selected: map[int][]int{0: {1}}})
	if !*res.Details[0].IsCorrect {
		t.Error("selecting index 1 must be correct")
	}
}

func TestEvaluateNoCorrectOption(t *testing.T) {
	q := mcQuestion("typo question") // nobody marked correct
	res := Evaluate(model.ModeTest, []model.Question{q}, Answers{Selected: map[int][]int{0: {0}}})
	if *res.Details[0].IsCorrect {
		t.Error("question without a marked option must judge every submission incorrect")
	}
}

func TestEvaluateMultiSelect(t *testing.T) {
	questions := []model.Question{mcQuestion("multi", 0, 2)}

	tests := []struct {
		name     string
		selected []int
		want     bool
	}{
		{"exact set", []int{0, 2}, true},
		{"order independent", []int{2, 0}, true},
		{"duplicates collapse", []int{0, 2, 2}, true},
		{"subset", []int{0}, false},
		{"superset", []int{0, 1, 2}, false},
		{"empty", nil, false},
		{"invalid indices dropped", []int{0, 2, 99}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(model.ModeTest, questions, Answers{Selected: map[int][]int{0: tt.selected}})
			if got := *res.Details[0].IsCorrect; got != tt.want {
				t.Errorf("IsCorrect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateRounding(t *testing.T) {
	questions := []model.Question{
		mcQuestion("q1", 0),
		mcQuestion("q2", 0),
		mcQuestion("q3", 0),
	}
	res := Evaluate(model.ModeTest, questions, Answers{Selected: map[int][]int{0: {0}}})
	if *res.ScorePercent != 33.33 {
		t.Errorf("ScorePercent = %v, want 33.33", *res.ScorePercent)
	}
}

func TestEvaluateZeroQuestions(t *testing.T) {
	res := Evaluate(model.ModeTest, nil, Answers{})
	if res.ScorePercent == nil || *res.ScorePercent != 0 {
		t.Errorf("ScorePercent = %v, want 0", res.ScorePercent)
	}
}

func TestEvaluateOpen(t *testing.T) {
	questions := []model.Question{
		{Text: "What is water?", CorrectAnswer: "H2O"},
		{Text: "What is fire?", CorrectAnswer: "Combustion"},
	}
	answers := Answers{Text: map[int]string{0: "wet stuff"}}

	res := Evaluate(model.ModeOpen, questions, answers)
	if res.ScorePercent != nil {
		t.Error("open mode must leave ScorePercent unset pending grading")
	}
	if res.CorrectCount != nil {
		t.Error("open mode has no automatic correctness")
	}
	want := []model.GradingItem{
		{Question: "What is water?", StudentAnswer: "wet stuff", CorrectAnswer: "H2O"},
		{Question: "What is fire?", StudentAnswer: "", CorrectAnswer: "Combustion"},
	}
	if !reflect.DeepEqual(res.GradingItems, want) {
		t.Errorf("GradingItems = %+v, want %+v", res.GradingItems, want)
	}
	if res.Details[0].StudentAnswer != "wet stuff" || res.Details[1].ReferenceAnswer != "Combustion" {
		t.Errorf("Details = %+v", res.Details)
	}
}

func TestEvaluateSelfStudy(t *testing.T) {
	res := Evaluate(model.ModeSelfStudy, []model.Question{{Text: "reflect"}}, Answers{})
	if res.ScorePercent != nil || res.CorrectCount != nil || len(res.Details) != 0 || len(res.GradingItems) != 0 {
		t.Errorf("self-study must produce nothing, got %+v", res)
	}
}
