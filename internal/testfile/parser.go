// Package testfile reads and parses the plain-text test definition format.
//
// A file starts with an optional MODE: directive (Test, Open, Self) and
// continues with question blocks separated by blank lines:
//
//	MODE: Test
//
//	Q: Сколько будет 2+2?
//	1) 3
//	*2) 4
//	3) 5
//
// A leading * marks the correct option. Open-mode files may carry an
// answer-key section after a --- separator, headed by "Ответы":
//
//	---
//	Ответы:
//	1. H2O
//	2. Combustion
package testfile

import (
	"strings"
	"unicode"

	"github.com/olegsv/schoolquiz/internal/model"
)

const modePrefix = "MODE:"

// Parse parses test-definition text into a topic mode and its questions.
// Malformed input never fails; it degrades to fewer (or zero) questions.
// The same text always yields an identical structure.
func Parse(text string) (model.TopicMode, []model.Question) {
	lines := splitLines(text)

	index := 0
	mode := model.ModeTest

	for index < len(lines) && isBlank(lines[index]) {
		index++
	}
	if index < len(lines) && hasFoldPrefix(lines[index], modePrefix) {
		mode = model.ParseTopicMode(lines[index][len(modePrefix):])
		index++
	}

	var questions []model.Question

	for index < len(lines) {
		for index < len(lines) && isBlank(lines[index]) {
			index++
		}
		if index >= len(lines) {
			break
		}

		// In Open mode a --- separator marks the start of the answer key.
		if mode == model.ModeOpen && strings.HasPrefix(strings.TrimSpace(lines[index]), "---") {
			break
		}

		if !hasFoldPrefix(lines[index], "Q:") {
			index++
			continue
		}

		q := model.Question{
			Text: strings.Trim(lines[index][2:], ": \t"),
		}
		index++

		if mode == model.ModeTest {
			for index < len(lines) && !isBlank(lines[index]) && !hasFoldPrefix(lines[index], "Q:") {
				line := lines[index]
				isCorrect := false
				if strings.HasPrefix(line, "*") {
					isCorrect = true
					line = strings.TrimLeft(line[1:], " \t")
				}
				if strings.TrimSpace(line) != "" {
					q.Options = append(q.Options, model.AnswerOption{
						Text:      line,
						IsCorrect: isCorrect,
					})
				}
				index++
			}
		} else {
			// Open and self-study questions have no option lines; skip any
			// stray content up to the next block.
			for index < len(lines) && !isBlank(lines[index]) && !hasFoldPrefix(lines[index], "Q:") {
				index++
			}
		}

		if strings.TrimSpace(q.Text) != "" {
			questions = append(questions, q)
		}
	}

	if mode == model.ModeOpen && len(questions) > 0 {
		parseAnswerKey(lines, index, questions)
	}

	return mode, questions
}

// parseAnswerKey scans forward from index for the --- separator and the
// "Ответы" header, then assigns numbered reference answers to questions.
// Numbers outside range and malformed lines are silently ignored.
func parseAnswerKey(lines []string, index int, questions []model.Question) {
	for index < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[index]), "---") {
		index++
	}
	if index >= len(lines) {
		return
	}
	index++
	for index < len(lines) && isBlank(lines[index]) {
		index++
	}
	if index >= len(lines) {
		return
	}
	header := strings.TrimSpace(lines[index])
	if !strings.HasPrefix(header, "ОТВЕТЫ") && !strings.HasPrefix(header, "Ответы") {
		return
	}
	index++

	answers := make(map[int]string)
	for ; index < len(lines); index++ {
		line := strings.TrimSpace(lines[index])
		if line == "" {
			continue
		}
		num, rest, ok := splitNumberedLine(line)
		if !ok {
			continue
		}
		if rest != "" {
			answers[num] = rest
		}
	}

	for i := range questions {
		if ans, ok := answers[i+1]; ok {
			questions[i].CorrectAnswer = ans
		}
	}
}

// splitNumberedLine splits a line of the form "<N><.|)>answer text" into
// the number and the answer text.
func splitNumberedLine(line string) (int, string, bool) {
	end := 0
	for end < len(line) && (isDigit(line[end]) || line[end] == '.' || line[end] == ')') {
		end++
	}
	if end == 0 {
		return 0, "", false
	}
	numStr := strings.TrimRight(line[:end], ".) \t")
	if numStr == "" {
		return 0, "", false
	}
	num := 0
	for i := 0; i < len(numStr); i++ {
		if !isDigit(numStr[i]) {
			return 0, "", false
		}
		num = num*10 + int(numStr[i]-'0')
	}
	rest := strings.TrimLeft(line[end:], ".) \t:")
	return num, rest, true
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// hasFoldPrefix reports whether s starts with prefix, case-insensitively.
func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
