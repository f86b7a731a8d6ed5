package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

var baseTime = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: baseTime} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AttemptEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.AttemptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	clock     *fakeClock
	store     *memory.AttemptStore
	publisher *recordingPublisher
	attempts  *app.AttemptService
	stats     *app.StatisticsService
}

func newHarness() *harness {
	clock := newFakeClock()
	store := memory.NewAttemptStore()
	publisher := &recordingPublisher{}
	tests := memory.NewTestRepository(memory.NewStaticTestLoader(sampleTests()), time.Minute)

	var seq int
	var seqMu sync.Mutex
	nextID := func() string {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}

	return &harness{
		clock:     clock,
		store:     store,
		publisher: publisher,
		attempts: app.NewAttemptService(store, tests,
			app.WithClock(clock.Now),
			app.WithLocker(memory.NewKeyedLocker()),
			app.WithPublisher(publisher),
			app.WithIDGenerator(nextID),
		),
		stats: app.NewStatisticsService(tests, store),
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

var (
	creator      = domain.Caller{ID: "creator-1", Role: domain.RoleCreator}
	otherCreator = domain.Caller{ID: "creator-2", Role: domain.RoleTeacher}
	participant  = domain.Caller{ID: "student-1", Role: domain.RoleParticipant}
)

// sampleTests: "timed" has a 10 minute limit and one question of each type.
func sampleTests() map[string]domain.Test {
	questions := []domain.Question{
		{
			ID: "q1", Text: "2 + 2?", Type: domain.QuestionSingleChoice, Order: 1,
			Options: []domain.Option{
				{ID: "o1", Text: "3", Order: 1},
				{ID: "o2", Text: "4", IsCorrect: true, Order: 2},
			},
		},
		{
			ID: "q2", Text: "Primes?", Type: domain.QuestionMultipleChoice, Order: 2,
			Options: []domain.Option{
				{ID: "m1", Text: "2", IsCorrect: true, Order: 1},
				{ID: "m2", Text: "3", IsCorrect: true, Order: 2},
				{ID: "m3", Text: "4", Order: 3},
			},
		},
		{
			ID: "q3", Text: "Capital of France?", Type: domain.QuestionTextInput, Order: 3,
			CorrectTextAnswer: strPtr("Paris"),
		},
	}
	return map[string]domain.Test{
		"timed": {
			ID: "timed", Title: "Timed quiz", CreatorID: creator.ID, TimeLimit: intPtr(10),
			Status: domain.TestStatusActive, Questions: questions, CreatedAt: baseTime.Add(-48 * time.Hour),
		},
		"open": {
			ID: "open", Title: "Open quiz", CreatorID: creator.ID,
			Status: domain.TestStatusActive, Questions: questions[:2], CreatedAt: baseTime.Add(-24 * time.Hour),
		},
		"draft": {
			ID: "draft", Title: "Draft quiz", CreatorID: creator.ID,
			Status: domain.TestStatusDraft, Questions: questions[:1], CreatedAt: baseTime.Add(-time.Hour),
		},
		"foreign": {
			ID: "foreign", Title: "Other creator", CreatorID: otherCreator.ID,
			Status: domain.TestStatusActive, Questions: questions[:1], CreatedAt: baseTime,
		},
	}
}

func countByQuestion(answers []domain.Answer, questionID string) int {
	n := 0
	for _, a := range answers {
		if a.QuestionID == questionID {
			n++
		}
	}
	return n
}

var errPublish = errors.New("broker down")
