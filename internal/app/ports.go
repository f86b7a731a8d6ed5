package app

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// TestRepository provides read-only test snapshots (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.Test, error)
	ListTestsByCreator(ctx context.Context, creatorID string) ([]domain.Test, error)
}

// AttemptStore abstracts durable attempt and answer records (in-memory, Postgres).
type AttemptStore interface {
	// InTx runs fn as one atomic unit. Any error returned by fn rolls back its writes.
	InTx(ctx context.Context, fn func(ctx context.Context, tx AttemptTx) error) error

	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	ListAttemptsByUser(ctx context.Context, userID string) ([]domain.Attempt, error)
	// ListAttemptsByTest returns attempts of a test, newest first. No statuses means all.
	ListAttemptsByTest(ctx context.Context, testID string, statuses ...domain.AttemptStatus) ([]domain.Attempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
}

// AttemptTx is the transactional view of the store. Reads lock the rows they return.
type AttemptTx interface {
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	FindInProgress(ctx context.Context, userID, testID string) (domain.Attempt, bool, error)
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	UpdateAttempt(ctx context.Context, attempt domain.Attempt) error
	// ReplaceAnswers deletes every answer of (attemptID, questionID) and inserts answers.
	ReplaceAnswers(ctx context.Context, attemptID, questionID string, answers []domain.Answer) error
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
}

// AttemptLocker serializes operations sharing a key across goroutines or instances.
type AttemptLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// EventPublisher delivers lifecycle events. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AttemptEvent) error
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.AttemptEvent) error { return nil }
