package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
// Transactions hold the store mutex for their whole duration and restore a snapshot on error.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	answers  map[string][]domain.Answer // by attempt id
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
		answers:  make(map[string][]domain.Answer),
	}
}

func (s *AttemptStore) InTx(ctx context.Context, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := maps.Clone(s.attempts)
	answers := maps.Clone(s.answers)
	if err := fn(ctx, attemptTx{s}); err != nil {
		s.attempts, s.answers = attempts, answers
		return err
	}
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) ListAttemptsByUser(_ context.Context, userID string) ([]domain.Attempt, error) {
	return s.filter(func(a domain.Attempt) bool { return a.UserID == userID }), nil
}

func (s *AttemptStore) ListAttemptsByTest(_ context.Context, testID string, statuses ...domain.AttemptStatus) ([]domain.Attempt, error) {
	return s.filter(func(a domain.Attempt) bool {
		if a.TestID != testID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, st := range statuses {
			if a.Status == st {
				return true
			}
		}
		return false
	}), nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.answers[attemptID]...), nil
}

// filter returns matching attempts, newest first.
func (s *AttemptStore) filter(match func(domain.Attempt) bool) []domain.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// attemptTx operates on the store while InTx holds its lock.
type attemptTx struct {
	s *AttemptStore
}

func (tx attemptTx) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	attempt, ok := tx.s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (tx attemptTx) FindInProgress(_ context.Context, userID, testID string) (domain.Attempt, bool, error) {
	for _, a := range tx.s.attempts {
		if a.UserID == userID && a.TestID == testID && a.Status == domain.AttemptInProgress {
			return a, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (tx attemptTx) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	if attempt.Status == domain.AttemptInProgress {
		if _, ok, _ := tx.FindInProgress(context.Background(), attempt.UserID, attempt.TestID); ok {
			return domain.ErrAttemptConflict
		}
	}
	tx.s.attempts[attempt.ID] = attempt
	return nil
}

func (tx attemptTx) UpdateAttempt(_ context.Context, attempt domain.Attempt) error {
	if _, ok := tx.s.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	tx.s.attempts[attempt.ID] = attempt
	return nil
}

func (tx attemptTx) ReplaceAnswers(_ context.Context, attemptID, questionID string, answers []domain.Answer) error {
	existing := tx.s.answers[attemptID]
	kept := make([]domain.Answer, 0, len(existing)+len(answers))
	for _, a := range existing {
		if a.QuestionID != questionID {
			kept = append(kept, a)
		}
	}
	tx.s.answers[attemptID] = append(kept, answers...)
	return nil
}

func (tx attemptTx) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	return append([]domain.Answer(nil), tx.s.answers[attemptID]...), nil
}
