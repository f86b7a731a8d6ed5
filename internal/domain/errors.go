package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the attempt engine wraps exactly one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrExpired         = errors.New("expired")
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

var (
	// ErrTestNotFound indicates the test snapshot could not be loaded.
	ErrTestNotFound = fmt.Errorf("test %w", ErrNotFound)
	// ErrAttemptNotFound is returned when an attempt is missing or owned by someone else.
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question ID is not part of the attempt's test.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrOptionNotFound indicates a submitted option ID does not belong to the question.
	ErrOptionNotFound = fmt.Errorf("option does not belong to question: %w", ErrInvalidInput)
	// ErrTestNotActive is returned when starting a draft or closed test.
	ErrTestNotActive = fmt.Errorf("test is not active: %w", ErrInvalidState)
	// ErrAttemptFinished is returned when operating on a completed or abandoned attempt.
	ErrAttemptFinished = fmt.Errorf("attempt already finished: %w", ErrInvalidState)
	// ErrTimeExpired is returned after an attempt has been abandoned for exceeding the time limit.
	ErrTimeExpired = fmt.Errorf("time limit exceeded, attempt abandoned: %w", ErrExpired)
	// ErrUnsupportedAnswer covers payloads that do not fit the question type.
	ErrUnsupportedAnswer = fmt.Errorf("answer does not match question type: %w", ErrInvalidInput)
	// ErrNotTestOwner is returned when a creator reads another creator's test.
	ErrNotTestOwner = fmt.Errorf("no access to this test: %w", ErrForbidden)
	// ErrCreatorOnly is returned when a non-creator calls a creator operation.
	ErrCreatorOnly = fmt.Errorf("creator role required: %w", ErrForbidden)
)

// ErrAttemptConflict is returned by stores when another in-progress attempt was created concurrently.
var ErrAttemptConflict = errors.New("concurrent in-progress attempt")

// Kind returns a stable machine-readable code for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	}
	return "internal"
}
