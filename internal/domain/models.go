package domain

import "time"

// TestStatus is the publication state of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "draft"
	TestStatusActive    TestStatus = "active"
	TestStatusCompleted TestStatus = "completed"
)

// QuestionType selects the grading rule for a question.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTextInput      QuestionType = "text_input"
)

// AttemptStatus is the lifecycle state of an attempt. Completed and abandoned are terminal.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Role is the role claim of an authenticated caller.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleCreator     Role = "creator"
	RoleTeacher     Role = "teacher"
	RoleProfessor   Role = "professor"
)

// IsCreator reports whether the role may author tests and read their results.
func (r Role) IsCreator() bool {
	switch r {
	case RoleCreator, RoleTeacher, RoleProfessor:
		return true
	}
	return false
}

// Caller identifies who invokes an operation.
type Caller struct {
	ID   string
	Role Role
}

// Option represents a possible answer for a choice question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Order     int    `json:"order"`
}

// Question is a single item of a test.
type Question struct {
	ID                string       `json:"id"`
	Text              string       `json:"text"`
	Type              QuestionType `json:"type"`
	Order             int          `json:"order"`
	CorrectTextAnswer *string      `json:"correctTextAnswer"`
	Options           []Option     `json:"options"`
}

// Test is the published snapshot consumed by the attempt engine.
type Test struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatorID string     `json:"creatorId"`
	TimeLimit *int       `json:"timeLimit"` // minutes
	Status    TestStatus `json:"status"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Question looks up a question by id.
func (t Test) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Clone returns a deep copy so callers may mutate questions and options freely.
func (t Test) Clone() Test {
	out := t
	if t.TimeLimit != nil {
		limit := *t.TimeLimit
		out.TimeLimit = &limit
	}
	if t.Questions != nil {
		out.Questions = make([]Question, len(t.Questions))
		for i, q := range t.Questions {
			cq := q
			if q.CorrectTextAnswer != nil {
				text := *q.CorrectTextAnswer
				cq.CorrectTextAnswer = &text
			}
			if q.Options != nil {
				cq.Options = append([]Option(nil), q.Options...)
			}
			out.Questions[i] = cq
		}
	}
	return out
}

// Redacted returns a copy with every correctness marker removed.
func (t Test) Redacted() Test {
	out := t.Clone()
	for i := range out.Questions {
		out.Questions[i].CorrectTextAnswer = nil
		for j := range out.Questions[i].Options {
			out.Questions[i].Options[j].IsCorrect = false
		}
	}
	return out
}

// Attempt is one user's run through a test.
type Attempt struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	TestID         string        `json:"testId"`
	Status         AttemptStatus `json:"status"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt"`
	Score          *float64      `json:"score"`
	CorrectAnswers *int          `json:"correctAnswers"`
	TotalQuestions int           `json:"totalQuestions"`
}

// ElapsedMinutes returns the fractional minutes between start and now.
func (a Attempt) ElapsedMinutes(now time.Time) float64 {
	return now.Sub(a.StartedAt).Minutes()
}

// Answer is a graded response row. Multiple-choice submissions store one row per chosen option.
type Answer struct {
	ID               string    `json:"id"`
	AttemptID        string    `json:"attemptId"`
	QuestionID       string    `json:"questionId"`
	SelectedOptionID *string   `json:"selectedOptionId"`
	TextAnswer       *string   `json:"textAnswer"`
	IsCorrect        bool      `json:"isCorrect"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AnswerPayload is the submitted answer for one question. All fields empty means "no answer".
type AnswerPayload struct {
	SelectedOptionID  *string  `json:"selectedOptionId,omitempty"`
	SelectedOptionIDs []string `json:"selectedOptionIds,omitempty"`
	TextAnswer        *string  `json:"textAnswer,omitempty"`
}

// AttemptView is what the attempt owner sees. Test is redacted while the attempt is in progress.
type AttemptView struct {
	Attempt
	Test             Test     `json:"test"`
	Answers          []Answer `json:"answers"`
	RemainingMinutes *float64 `json:"remainingTime,omitempty"`
}

// AttemptSummary is an entry of a user's attempt history.
type AttemptSummary struct {
	Attempt
	TestTitle string `json:"testTitle"`
}

// AttemptDetails is the creator-facing view of an attempt.
type AttemptDetails struct {
	Attempt
	Test    Test     `json:"test"`
	Answers []Answer `json:"answers"`
}
