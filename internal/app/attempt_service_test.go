package app_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestStartAttemptCreatesAndResumes(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	first, err := h.attempts.StartAttempt(ctx, participant.ID, "timed")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.Status != domain.AttemptInProgress || first.TotalQuestions != 3 {
		t.Fatalf("unexpected attempt %+v", first)
	}
	if !first.StartedAt.Equal(baseTime) {
		t.Fatalf("expected server start time, got %s", first.StartedAt)
	}

	h.clock.Advance(2 * time.Minute)
	again, err := h.attempts.StartAttempt(ctx, participant.ID, "timed")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if again.ID != first.ID || !again.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("expected resume of %s, got %+v", first.ID, again)
	}
	if got := h.publisher.types(); len(got) != 1 || got[0] != domain.EventAttemptStarted {
		t.Fatalf("expected one started event, got %v", got)
	}
}

func TestStartAttemptRejectsUnknownAndInactiveTests(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	if _, err := h.attempts.StartAttempt(ctx, participant.ID, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.attempts.StartAttempt(ctx, participant.ID, "draft"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestStartAttemptAfterExpiryAbandonsThenStartsFresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	first, err := h.attempts.StartAttempt(ctx, participant.ID, "timed")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(11 * time.Minute)

	if _, err := h.attempts.StartAttempt(ctx, participant.ID, "timed"); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	stored, err := h.store.GetAttempt(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.AttemptAbandoned || stored.CompletedAt == nil || !stored.CompletedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected persisted abandonment, got %+v", stored)
	}
	if stored.Score != nil {
		t.Fatalf("abandoned attempt must not be scored")
	}

	fresh, err := h.attempts.StartAttempt(ctx, participant.ID, "timed")
	if err != nil {
		t.Fatalf("fresh start: %v", err)
	}
	if fresh.ID == first.ID || fresh.Status != domain.AttemptInProgress {
		t.Fatalf("expected a new attempt, got %+v", fresh)
	}
}

func TestConcurrentStartsYieldOneAttempt(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := h.attempts.StartAttempt(ctx, participant.ID, "open")
			if err != nil {
				t.Errorf("start %d: %v", i, err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected a single attempt id, got %v", ids)
		}
	}
	all, err := h.store.ListAttemptsByUser(ctx, participant.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one stored attempt, got %d", len(all))
	}
}

func TestSubmitAnswerReplacesPreviousAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")

	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q1", domain.AnswerPayload{SelectedOptionID: strPtr("o1")}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	answers, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q1", domain.AnswerPayload{SelectedOptionID: strPtr("o2")})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if len(answers) != 1 || !answers[0].IsCorrect {
		t.Fatalf("expected one correct answer, got %+v", answers)
	}

	stored, _ := h.store.ListAnswers(ctx, attempt.ID)
	if n := countByQuestion(stored, "q1"); n != 1 {
		t.Fatalf("expected replacement, found %d rows", n)
	}
}

func TestSubmitMultipleChoiceRequiresExactSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")

	cases := []struct {
		name    string
		ids     []string
		correct bool
	}{
		{name: "subset", ids: []string{"m1"}, correct: false},
		{name: "superset", ids: []string{"m1", "m2", "m3"}, correct: false},
		{name: "exact", ids: []string{"m2", "m1"}, correct: true},
	}
	for _, tc := range cases {
		answers, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q2", domain.AnswerPayload{SelectedOptionIDs: tc.ids})
		if err != nil {
			t.Fatalf("%s: submit: %v", tc.name, err)
		}
		if len(answers) != len(tc.ids) {
			t.Fatalf("%s: expected %d rows, got %d", tc.name, len(tc.ids), len(answers))
		}
		for _, a := range answers {
			if a.IsCorrect != tc.correct {
				t.Fatalf("%s: expected correct=%v, got %+v", tc.name, tc.correct, a)
			}
		}
	}

	stored, _ := h.store.ListAnswers(ctx, attempt.ID)
	if n := countByQuestion(stored, "q2"); n != 2 {
		t.Fatalf("expected only the last submission's 2 rows, got %d", n)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")

	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q9", domain.AnswerPayload{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q1", domain.AnswerPayload{SelectedOptionID: strPtr("m1")}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for foreign option, got %v", err)
	}
	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, "intruder", "q1", domain.AnswerPayload{SelectedOptionID: strPtr("o2")}); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
	if _, err := h.attempts.SubmitAnswer(ctx, "nope", participant.ID, "q1", domain.AnswerPayload{}); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}

	stored, _ := h.store.ListAnswers(ctx, attempt.ID)
	if len(stored) != 0 {
		t.Fatalf("rejected submissions must not persist, got %+v", stored)
	}
}

func TestSubmitAnswerAtTimeLimitBoundary(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")

	h.clock.Advance(10 * time.Minute)
	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q3", domain.AnswerPayload{TextAnswer: strPtr("paris")}); err != nil {
		t.Fatalf("submit exactly at the limit should pass: %v", err)
	}

	h.clock.Advance(time.Second)
	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q1", domain.AnswerPayload{SelectedOptionID: strPtr("o2")}); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	// expiry is sticky
	stored, _ := h.store.GetAttempt(ctx, attempt.ID)
	if stored.Status != domain.AttemptAbandoned {
		t.Fatalf("expected abandoned, got %s", stored.Status)
	}
	if _, err := h.attempts.CompleteTest(ctx, attempt.ID, participant.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state after abandonment, got %v", err)
	}
	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q1", domain.AnswerPayload{SelectedOptionID: strPtr("o2")}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state after abandonment, got %v", err)
	}
	view, err := h.attempts.GetAttempt(ctx, attempt.ID, participant.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != domain.AttemptAbandoned || view.RemainingMinutes != nil {
		t.Fatalf("unexpected view %+v", view.Attempt)
	}
}

func TestCompleteTestScoresEachQuestionOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")

	submit := func(questionID string, payload domain.AnswerPayload) {
		t.Helper()
		if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, questionID, payload); err != nil {
			t.Fatalf("submit %s: %v", questionID, err)
		}
	}
	submit("q1", domain.AnswerPayload{SelectedOptionID: strPtr("o2")})
	submit("q2", domain.AnswerPayload{SelectedOptionIDs: []string{"m1", "m2"}})
	submit("q3", domain.AnswerPayload{TextAnswer: strPtr("  London ")})

	h.clock.Advance(5 * time.Minute)
	done, err := h.attempts.CompleteTest(ctx, attempt.ID, participant.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.AttemptCompleted || done.CorrectAnswers == nil || *done.CorrectAnswers != 2 {
		t.Fatalf("unexpected completion %+v", done)
	}
	if math.Abs(*done.Score-200.0/3) > 1e-9 {
		t.Fatalf("expected score 66.67, got %v", *done.Score)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected completion time, got %v", done.CompletedAt)
	}

	if _, err := h.attempts.CompleteTest(ctx, attempt.ID, participant.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on second completion, got %v", err)
	}
	want := []domain.EventType{domain.EventAttemptStarted, domain.EventAttemptCompleted}
	if got := h.publisher.types(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCompleteTestWithoutAnswersScoresZero(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "open")

	done, err := h.attempts.CompleteTest(ctx, attempt.ID, participant.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if *done.Score != 0 || *done.CorrectAnswers != 0 {
		t.Fatalf("expected zero score, got %+v", done)
	}
}

func TestCompleteTestAfterExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")
	h.clock.Advance(15 * time.Minute)

	if _, err := h.attempts.CompleteTest(ctx, attempt.ID, participant.ID); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	stored, _ := h.store.GetAttempt(ctx, attempt.ID)
	if stored.Status != domain.AttemptAbandoned || stored.Score != nil {
		t.Fatalf("expected unscored abandoned attempt, got %+v", stored)
	}
	got := h.publisher.types()
	if got[len(got)-1] != domain.EventAttemptAbandoned {
		t.Fatalf("expected abandoned event, got %v", got)
	}
}

func TestGetAttemptRedactsWhileInProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")
	if _, err := h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q1", domain.AnswerPayload{SelectedOptionID: strPtr("o2")}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	h.clock.Advance(3 * time.Minute)
	view, err := h.attempts.GetAttempt(ctx, attempt.ID, participant.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.RemainingMinutes == nil || *view.RemainingMinutes != 7 {
		t.Fatalf("expected 7 minutes left, got %v", view.RemainingMinutes)
	}
	for _, q := range view.Test.Questions {
		if q.CorrectTextAnswer != nil {
			t.Fatalf("question %s leaks its text answer", q.ID)
		}
		for _, o := range q.Options {
			if o.IsCorrect {
				t.Fatalf("option %s leaks correctness", o.ID)
			}
		}
	}
	if len(view.Answers) != 1 || view.Answers[0].IsCorrect {
		t.Fatalf("expected redacted answers, got %+v", view.Answers)
	}

	// redaction must not leak into the cached snapshot
	if _, err := h.attempts.CompleteTest(ctx, attempt.ID, participant.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	final, _ := h.attempts.GetAttempt(ctx, attempt.ID, participant.ID)
	q1, _ := final.Test.Question("q1")
	if !q1.Options[1].IsCorrect || !final.Answers[0].IsCorrect {
		t.Fatalf("expected unredacted view after completion, got %+v", q1)
	}
	if final.RemainingMinutes != nil {
		t.Fatalf("finished attempts report no remaining time")
	}
}

func TestGetAttemptExpiresOnRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")

	h.clock.Advance(10 * time.Minute)
	view, err := h.attempts.GetAttempt(ctx, attempt.ID, participant.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != domain.AttemptAbandoned || view.RemainingMinutes == nil || *view.RemainingMinutes != 0 {
		t.Fatalf("expected abandoned with zero remaining, got %+v", view)
	}
	stored, _ := h.store.GetAttempt(ctx, attempt.ID)
	if stored.Status != domain.AttemptAbandoned {
		t.Fatalf("expected persisted abandonment, got %s", stored.Status)
	}
	if _, err := h.attempts.GetAttempt(ctx, attempt.ID, "intruder"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
}

func TestGetAttemptWithoutTimeLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "open")
	h.clock.Advance(48 * time.Hour)

	view, err := h.attempts.GetAttempt(ctx, attempt.ID, participant.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != domain.AttemptInProgress || view.RemainingMinutes != nil {
		t.Fatalf("untimed attempts never expire, got %+v", view)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.publisher.err = errPublish

	attempt, err := h.attempts.StartAttempt(ctx, participant.ID, "open")
	if err != nil {
		t.Fatalf("start should ignore publish errors: %v", err)
	}
	if _, err := h.attempts.CompleteTest(ctx, attempt.ID, participant.ID); err != nil {
		t.Fatalf("complete should ignore publish errors: %v", err)
	}
}

func TestGetUserAttemptsNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	first, _ := h.attempts.StartAttempt(ctx, participant.ID, "open")
	h.clock.Advance(time.Minute)
	second, _ := h.attempts.StartAttempt(ctx, participant.ID, "timed")
	_, _ = h.attempts.StartAttempt(ctx, "someone-else", "timed")

	list, err := h.attempts.GetUserAttempts(ctx, participant.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order %+v", list)
	}
	if list[0].TestTitle != "Timed quiz" {
		t.Fatalf("expected title, got %q", list[0].TestTitle)
	}
}

func TestCreatorReadsRequireOwnership(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	attempt, _ := h.attempts.StartAttempt(ctx, participant.ID, "open")
	_, _ = h.attempts.SubmitAnswer(ctx, attempt.ID, participant.ID, "q1", domain.AnswerPayload{SelectedOptionID: strPtr("o2")})

	if _, err := h.attempts.GetTestAttempts(ctx, "open", participant); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for participant, got %v", err)
	}
	if _, err := h.attempts.GetTestAttempts(ctx, "open", otherCreator); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for other creator, got %v", err)
	}
	if _, err := h.attempts.GetTestAttempts(ctx, "missing", creator); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, err := h.attempts.GetTestAttempts(ctx, "open", creator)
	if err != nil {
		t.Fatalf("test attempts: %v", err)
	}
	if len(list) != 1 || len(list[0].Answers) != 1 || !list[0].Answers[0].IsCorrect {
		t.Fatalf("unexpected attempts %+v", list)
	}

	details, err := h.attempts.GetAttemptDetails(ctx, attempt.ID, creator)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Test.ID != "open" || len(details.Answers) != 1 {
		t.Fatalf("unexpected details %+v", details)
	}
	if _, err := h.attempts.GetAttemptDetails(ctx, attempt.ID, otherCreator); !errors.Is(err, domain.ErrNotTestOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := h.attempts.GetAttemptDetails(ctx, "missing", creator); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}
