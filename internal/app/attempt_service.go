package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

// AttemptService runs the attempt lifecycle: start, answer, complete, and lazy expiry.
type AttemptService struct {
	store     AttemptStore
	tests     TestRepository
	locker    AttemptLocker
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// ServiceOption customizes an AttemptService.
type ServiceOption func(*AttemptService)

// WithClock replaces the time source; tests use it for deterministic expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *AttemptService) { s.now = now }
}

// WithLocker serializes operations per attempt, e.g. across instances via Redis.
func WithLocker(locker AttemptLocker) ServiceOption {
	return func(s *AttemptService) { s.locker = locker }
}

func WithPublisher(publisher EventPublisher) ServiceOption {
	return func(s *AttemptService) { s.publisher = publisher }
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *AttemptService) { s.logger = logger }
}

// WithIDGenerator replaces uuid-based identifiers.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *AttemptService) { s.newID = newID }
}

func NewAttemptService(store AttemptStore, tests TestRepository, opts ...ServiceOption) *AttemptService {
	s := &AttemptService{
		store:     store,
		tests:     tests,
		locker:    noopLocker{},
		publisher: noopPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAttempt creates an in-progress attempt or resumes the existing one.
// An existing attempt past the time limit is abandoned and ErrTimeExpired is returned.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, testID string) (domain.Attempt, error) {
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if test.Status != domain.TestStatusActive {
		return domain.Attempt{}, domain.ErrTestNotActive
	}

	unlock, err := s.locker.Lock(ctx, startLockKey(userID, testID))
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("lock start: %w", err)
	}
	defer unlock()

	var (
		result    domain.Attempt
		created   bool
		abandoned bool
	)
	start := func(ctx context.Context, tx AttemptTx) error {
		created, abandoned = false, false
		now := s.now()

		existing, ok, err := tx.FindInProgress(ctx, userID, testID)
		if err != nil {
			return err
		}
		if ok {
			if isExpired(test, existing, now) {
				result = abandon(existing, now)
				abandoned = true
				return tx.UpdateAttempt(ctx, result)
			}
			result = existing
			return nil
		}

		result = domain.Attempt{
			ID:             s.newID(),
			UserID:         userID,
			TestID:         testID,
			Status:         domain.AttemptInProgress,
			StartedAt:      now,
			TotalQuestions: len(test.Questions),
		}
		created = true
		return tx.CreateAttempt(ctx, result)
	}

	err = s.store.InTx(ctx, start)
	if errors.Is(err, domain.ErrAttemptConflict) {
		// Another instance inserted first; the retry resumes that attempt.
		err = s.store.InTx(ctx, start)
	}
	if err != nil {
		return domain.Attempt{}, err
	}

	switch {
	case abandoned:
		s.onAbandoned(ctx, result)
		return domain.Attempt{}, domain.ErrTimeExpired
	case created:
		s.logger.Info("attempt started", "attempt_id", result.ID, "user_id", userID, "test_id", testID)
		s.publish(ctx, domain.EventAttemptStarted, result)
	}
	return result, nil
}

// SubmitAnswer grades payload for one question and replaces any earlier answer to it.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID, userID, questionID string, payload domain.AnswerPayload) ([]domain.Answer, error) {
	unlock, err := s.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	defer unlock()

	test, err := s.snapshotFor(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	var (
		answers   []domain.Answer
		abandoned *domain.Attempt
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx AttemptTx) error {
		answers, abandoned = nil, nil

		attempt, err := loadActive(ctx, tx, attemptID, userID)
		if err != nil {
			return err
		}
		now := s.now()
		if isExpired(test, attempt, now) {
			a := abandon(attempt, now)
			abandoned = &a
			return tx.UpdateAttempt(ctx, a)
		}

		question, ok := test.Question(questionID)
		if !ok {
			return fmt.Errorf("question %s: %w", questionID, domain.ErrQuestionNotFound)
		}
		graded, err := gradeAnswer(question, payload)
		if err != nil {
			return err
		}

		answers = make([]domain.Answer, 0, len(graded))
		for _, g := range graded {
			answers = append(answers, domain.Answer{
				ID:               s.newID(),
				AttemptID:        attempt.ID,
				QuestionID:       questionID,
				SelectedOptionID: g.selectedOptionID,
				TextAnswer:       g.textAnswer,
				IsCorrect:        g.correct,
				CreatedAt:        now,
			})
		}
		return tx.ReplaceAnswers(ctx, attempt.ID, questionID, answers)
	})
	if err != nil {
		return nil, err
	}
	if abandoned != nil {
		s.onAbandoned(ctx, *abandoned)
		return nil, domain.ErrTimeExpired
	}
	return answers, nil
}

// CompleteTest scores the stored answers and closes the attempt.
func (s *AttemptService) CompleteTest(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	unlock, err := s.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("lock attempt: %w", err)
	}
	defer unlock()

	test, err := s.snapshotFor(ctx, attemptID, userID)
	if err != nil {
		return domain.Attempt{}, err
	}

	var (
		result  domain.Attempt
		expired bool
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx AttemptTx) error {
		expired = false

		attempt, err := loadActive(ctx, tx, attemptID, userID)
		if err != nil {
			return err
		}
		now := s.now()
		if isExpired(test, attempt, now) {
			result = abandon(attempt, now)
			expired = true
			return tx.UpdateAttempt(ctx, result)
		}

		answers, err := tx.ListAnswers(ctx, attempt.ID)
		if err != nil {
			return err
		}
		correct := countCorrectQuestions(answers)
		score := scorePercent(correct, attempt.TotalQuestions)

		attempt.Status = domain.AttemptCompleted
		attempt.CompletedAt = &now
		attempt.CorrectAnswers = &correct
		attempt.Score = &score
		result = attempt
		return tx.UpdateAttempt(ctx, attempt)
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	if expired {
		s.onAbandoned(ctx, result)
		return domain.Attempt{}, domain.ErrTimeExpired
	}

	s.logger.Info("attempt completed", "attempt_id", result.ID, "user_id", userID, "score", *result.Score)
	s.publish(ctx, domain.EventAttemptCompleted, result)
	return result, nil
}

// GetAttempt returns the owner's view of an attempt with the remaining time.
// Reading an attempt whose time has run out abandons it.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID, userID string) (domain.AttemptView, error) {
	unlock, err := s.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return domain.AttemptView{}, fmt.Errorf("lock attempt: %w", err)
	}
	defer unlock()

	test, err := s.snapshotFor(ctx, attemptID, userID)
	if err != nil {
		return domain.AttemptView{}, err
	}

	var (
		view      domain.AttemptView
		abandoned bool
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx AttemptTx) error {
		abandoned = false

		attempt, err := loadOwned(ctx, tx, attemptID, userID)
		if err != nil {
			return err
		}

		var remaining *float64
		if limit, ok := timeLimit(test); ok && attempt.Status == domain.AttemptInProgress {
			now := s.now()
			left := math.Max(0, limit-attempt.ElapsedMinutes(now))
			remaining = &left
			if left <= 0 {
				attempt = abandon(attempt, now)
				abandoned = true
				if err := tx.UpdateAttempt(ctx, attempt); err != nil {
					return err
				}
			}
		}

		answers, err := tx.ListAnswers(ctx, attempt.ID)
		if err != nil {
			return err
		}

		view = domain.AttemptView{Attempt: attempt, RemainingMinutes: remaining}
		if attempt.Status == domain.AttemptInProgress {
			view.Test = test.Redacted()
			view.Answers = redactAnswers(answers)
		} else {
			view.Test = test.Clone()
			view.Answers = answers
		}
		return nil
	})
	if err != nil {
		return domain.AttemptView{}, err
	}
	if abandoned {
		s.onAbandoned(ctx, view.Attempt)
	}
	return view, nil
}

// GetUserAttempts lists the caller's own attempts, newest first.
func (s *AttemptService) GetUserAttempts(ctx context.Context, userID string) ([]domain.AttemptSummary, error) {
	attempts, err := s.store.ListAttemptsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string)
	out := make([]domain.AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		title, ok := titles[a.TestID]
		if !ok {
			test, err := s.tests.GetTest(ctx, a.TestID)
			switch {
			case err == nil:
				title = test.Title
			case !errors.Is(err, domain.ErrNotFound):
				return nil, err
			}
			titles[a.TestID] = title
		}
		out = append(out, domain.AttemptSummary{Attempt: a, TestTitle: title})
	}
	return out, nil
}

// GetTestAttempts lists every attempt of a test owned by the calling creator.
func (s *AttemptService) GetTestAttempts(ctx context.Context, testID string, caller domain.Caller) ([]domain.AttemptDetails, error) {
	test, err := s.ownedTest(ctx, testID, caller)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttemptsByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AttemptDetails, 0, len(attempts))
	for _, a := range attempts {
		answers, err := s.store.ListAnswers(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.AttemptDetails{Attempt: a, Test: test, Answers: answers})
	}
	return out, nil
}

// GetAttemptDetails returns one attempt with its answers for the owning creator.
func (s *AttemptService) GetAttemptDetails(ctx context.Context, attemptID string, caller domain.Caller) (domain.AttemptDetails, error) {
	if !caller.Role.IsCreator() {
		return domain.AttemptDetails{}, domain.ErrCreatorOnly
	}
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptDetails{}, err
	}
	test, err := s.ownedTest(ctx, attempt.TestID, caller)
	if err != nil {
		return domain.AttemptDetails{}, err
	}
	answers, err := s.store.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return domain.AttemptDetails{}, err
	}
	return domain.AttemptDetails{Attempt: attempt, Test: test, Answers: answers}, nil
}

// GetTestStatistics aggregates the completed attempts of a creator's test.
func (s *AttemptService) GetTestStatistics(ctx context.Context, testID string, caller domain.Caller) (domain.TestStatistics, error) {
	if _, err := s.ownedTest(ctx, testID, caller); err != nil {
		return domain.TestStatistics{}, err
	}
	attempts, err := s.store.ListAttemptsByTest(ctx, testID, domain.AttemptCompleted)
	if err != nil {
		return domain.TestStatistics{}, err
	}
	return testStatistics(testID, attempts), nil
}

// snapshotFor loads the test of an owned attempt before any transaction starts.
// An attempt never changes test, so the snapshot stays valid inside the transaction.
func (s *AttemptService) snapshotFor(ctx context.Context, attemptID, userID string) (domain.Test, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Test{}, err
	}
	if attempt.UserID != userID {
		return domain.Test{}, domain.ErrAttemptNotFound
	}
	return s.tests.GetTest(ctx, attempt.TestID)
}

// loadActive returns an owned in-progress attempt.
func loadActive(ctx context.Context, tx AttemptTx, attemptID, userID string) (domain.Attempt, error) {
	attempt, err := loadOwned(ctx, tx, attemptID, userID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Status != domain.AttemptInProgress {
		return domain.Attempt{}, domain.ErrAttemptFinished
	}
	return attempt, nil
}

func (s *AttemptService) ownedTest(ctx context.Context, testID string, caller domain.Caller) (domain.Test, error) {
	if !caller.Role.IsCreator() {
		return domain.Test{}, domain.ErrCreatorOnly
	}
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return domain.Test{}, err
	}
	if test.CreatorID != caller.ID {
		return domain.Test{}, domain.ErrNotTestOwner
	}
	return test, nil
}

func (s *AttemptService) onAbandoned(ctx context.Context, attempt domain.Attempt) {
	s.logger.Info("attempt abandoned after time limit",
		"attempt_id", attempt.ID,
		"user_id", attempt.UserID,
		"test_id", attempt.TestID,
		"elapsed_minutes", attempt.ElapsedMinutes(*attempt.CompletedAt),
	)
	s.publish(ctx, domain.EventAttemptAbandoned, attempt)
}

func (s *AttemptService) publish(ctx context.Context, typ domain.EventType, attempt domain.Attempt) {
	if err := s.publisher.Publish(ctx, domain.NewAttemptEvent(typ, attempt, s.now())); err != nil {
		s.logger.Warn("publish attempt event failed", "type", typ, "attempt_id", attempt.ID, "error", err)
	}
}

func loadOwned(ctx context.Context, tx AttemptTx, attemptID, userID string) (domain.Attempt, error) {
	attempt, err := tx.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func timeLimit(test domain.Test) (float64, bool) {
	if test.TimeLimit == nil || *test.TimeLimit <= 0 {
		return 0, false
	}
	return float64(*test.TimeLimit), true
}

func isExpired(test domain.Test, attempt domain.Attempt, now time.Time) bool {
	limit, ok := timeLimit(test)
	return ok && attempt.ElapsedMinutes(now) > limit
}

func abandon(attempt domain.Attempt, now time.Time) domain.Attempt {
	attempt.Status = domain.AttemptAbandoned
	attempt.CompletedAt = &now
	return attempt
}

func redactAnswers(answers []domain.Answer) []domain.Answer {
	out := make([]domain.Answer, len(answers))
	for i, a := range answers {
		a.IsCorrect = false
		out[i] = a
	}
	return out
}

func attemptLockKey(attemptID string) string {
	return "attempt:" + attemptID
}

func startLockKey(userID, testID string) string {
	return "start:" + userID + ":" + testID
}
