// Package evaluate scores submitted answers against a parsed question list.
package evaluate

import (
	"math"
	"slices"

	"github.com/olegsv/schoolquiz/internal/model"
)

// Answers holds a student's submission keyed by question index.
// Selected carries option indices for multiple-choice topics, Text
// carries free-text answers for open topics. Missing keys mean the
// question was left unanswered.
type Answers struct {
	Selected map[int][]int
	Text     map[int]string
}

// Result is the outcome of evaluating one submission.
// ScorePercent and CorrectCount are set only for test-mode topics;
// GradingItems is populated only for open-mode topics and feeds the
// grading oracle.
type Result struct {
	Details      []model.QuestionResult
	CorrectCount *int
	ScorePercent *float64
	GradingItems []model.GradingItem
}

// Evaluate computes per-question results for a submission.
// Invalid or absent selections count as incorrect; nothing here panics
// on malformed input.
func Evaluate(mode model.TopicMode, questions []model.Question, answers Answers) Result {
	switch mode {
	case model.ModeTest:
		return evaluateTest(questions, answers)
	case model.ModeOpen:
		return evaluateOpen(questions, answers)
	default:
		// Self-study collects no submission and produces no score.
		return Result{}
	}
}

func evaluateTest(questions []model.Question, answers Answers) Result {
	var details []model.QuestionResult
	correct := 0

	for i, q := range questions {
		var qr model.QuestionResult
		if q.IsMultipleCorrect() {
			qr = evaluateMultiSelect(q, answers.Selected[i])
		} else {
			qr = evaluateSingleChoice(q, answers.Selected[i])
		}
		if qr.IsCorrect != nil && *qr.IsCorrect {
			correct++
		}
		details = append(details, qr)
	}

	score := 0.0
	if len(questions) > 0 {
		score = round2(float64(correct) * 100 / float64(len(questions)))
	}
	return Result{
		Details:      details,
		CorrectCount: &correct,
		ScorePercent: &score,
	}
}

// evaluateSingleChoice compares the selected option index against the
// position of the first correct option. Indices, not option texts, are
// compared so that duplicate-text options stay distinguishable. A
// question with no marked option can never be answered correctly.
func evaluateSingleChoice(q model.Question, selected []int) model.QuestionResult {
	selIdx := -1
	if len(selected) > 0 {
		selIdx = selected[0]
	}
	if selIdx < 0 || selIdx >= len(q.Options) {
		selIdx = -1
	}

	correctIdx := -1
	for j, o := range q.Options {
		if o.IsCorrect {
			correctIdx = j
			break
		}
	}

	isCorrect := selIdx >= 0 && correctIdx >= 0 && selIdx == correctIdx

	qr := model.QuestionResult{
		Question:  q.Text,
		IsCorrect: &isCorrect,
	}
	if selIdx >= 0 {
		qr.Selected = []string{q.Options[selIdx].Text}
	}
	if correctIdx >= 0 {
		qr.Correct = []string{q.Options[correctIdx].Text}
	}
	return qr
}

// evaluateMultiSelect judges a set of selected indices against the set
// of correct indices; order does not matter, the sets must match exactly.
func evaluateMultiSelect(q model.Question, selected []int) model.QuestionResult {
	var sel []int
	for _, v := range selected {
		if v >= 0 && v < len(q.Options) {
			sel = append(sel, v)
		}
	}
	slices.Sort(sel)
	sel = slices.Compact(sel)

	correctIdx := q.CorrectIndices()
	isCorrect := slices.Equal(sel, correctIdx)

	qr := model.QuestionResult{
		Question:  q.Text,
		IsCorrect: &isCorrect,
	}
	for _, j := range sel {
		qr.Selected = append(qr.Selected, q.Options[j].Text)
	}
	for _, j := range correctIdx {
		qr.Correct = append(qr.Correct, q.Options[j].Text)
	}
	return qr
}

// evaluateOpen records answers without judging them and packages the
// question/answer/reference triples for the grading oracle. The score
// stays unset until grading completes.
func evaluateOpen(questions []model.Question, answers Answers) Result {
	var details []model.QuestionResult
	var items []model.GradingItem

	for i, q := range questions {
		answer := answers.Text[i]
		details = append(details, model.QuestionResult{
			Question:        q.Text,
			StudentAnswer:   answer,
			ReferenceAnswer: q.CorrectAnswer,
		})
		items = append(items, model.GradingItem{
			Question:      q.Text,
			StudentAnswer: answer,
			CorrectAnswer: q.CorrectAnswer,
		})
	}
	return Result{Details: details, GradingItems: items}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
