package app

import (
	"fmt"
	"strings"

	"quiz-attempt-service/internal/domain"
)

// gradedAnswer is the outcome of grading a payload before ids and timestamps are assigned.
type gradedAnswer struct {
	selectedOptionID *string
	textAnswer       *string
	correct          bool
}

// gradeAnswer validates the payload against the question and returns the rows to store.
// It never returns an empty slice: an unanswered question still yields one incorrect row.
func gradeAnswer(question domain.Question, payload domain.AnswerPayload) ([]gradedAnswer, error) {
	switch question.Type {
	case domain.QuestionTextInput:
		if payload.SelectedOptionID != nil || len(payload.SelectedOptionIDs) > 0 {
			return nil, domain.ErrUnsupportedAnswer
		}
		return []gradedAnswer{gradeText(question, payload.TextAnswer)}, nil

	case domain.QuestionSingleChoice:
		if payload.TextAnswer != nil || len(payload.SelectedOptionIDs) > 0 {
			return nil, domain.ErrUnsupportedAnswer
		}
		if payload.SelectedOptionID == nil || *payload.SelectedOptionID == "" {
			return []gradedAnswer{{}}, nil
		}
		option, ok := findOption(question, *payload.SelectedOptionID)
		if !ok {
			return nil, fmt.Errorf("option %s: %w", *payload.SelectedOptionID, domain.ErrOptionNotFound)
		}
		id := option.ID
		return []gradedAnswer{{selectedOptionID: &id, correct: option.IsCorrect}}, nil

	case domain.QuestionMultipleChoice:
		if payload.TextAnswer != nil {
			return nil, domain.ErrUnsupportedAnswer
		}
		chosen := chosenOptionIDs(payload)
		if len(chosen) == 0 {
			return []gradedAnswer{{}}, nil
		}
		for _, id := range chosen {
			if _, ok := findOption(question, id); !ok {
				return nil, fmt.Errorf("option %s: %w", id, domain.ErrOptionNotFound)
			}
		}
		correct := sameSet(chosen, correctOptionIDs(question))
		rows := make([]gradedAnswer, 0, len(chosen))
		for _, id := range chosen {
			id := id
			rows = append(rows, gradedAnswer{selectedOptionID: &id, correct: correct})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("question type %q: %w", question.Type, domain.ErrUnsupportedAnswer)
}

func gradeText(question domain.Question, text *string) gradedAnswer {
	if text == nil {
		return gradedAnswer{}
	}
	submitted := normalizeText(*text)
	if submitted == "" {
		return gradedAnswer{textAnswer: text}
	}
	correct := question.CorrectTextAnswer != nil && normalizeText(*question.CorrectTextAnswer) == submitted
	return gradedAnswer{textAnswer: text, correct: correct}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// chosenOptionIDs prefers the multi-id field and falls back to the single id. Duplicates collapse.
func chosenOptionIDs(payload domain.AnswerPayload) []string {
	ids := payload.SelectedOptionIDs
	if len(ids) == 0 && payload.SelectedOptionID != nil && *payload.SelectedOptionID != "" {
		ids = []string{*payload.SelectedOptionID}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func findOption(question domain.Question, id string) (domain.Option, bool) {
	for _, opt := range question.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return domain.Option{}, false
}

func correctOptionIDs(question domain.Question) []string {
	var ids []string
	for _, opt := range question.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// countCorrectQuestions counts questions with at least one correct answer row.
func countCorrectQuestions(answers []domain.Answer) int {
	correct := make(map[string]bool)
	for _, a := range answers {
		if a.IsCorrect {
			correct[a.QuestionID] = true
		}
	}
	return len(correct)
}

// scorePercent returns correct/total as a percentage, 0 when total is 0.
func scorePercent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}
