package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptHandler exposes the attempt lifecycle and statistics over REST.
type AttemptHandler struct {
	attempts *app.AttemptService
	stats    *app.StatisticsService
	logger   *slog.Logger
}

func NewAttemptHandler(attempts *app.AttemptService, stats *app.StatisticsService, logger *slog.Logger) *AttemptHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptHandler{attempts: attempts, stats: stats, logger: logger}
}

type startRequest struct {
	TestID string `json:"testId"`
}

type submitAnswerRequest struct {
	QuestionID string `json:"questionId"`
	domain.AnswerPayload
}

type remainingTimeResponse struct {
	AttemptID     string               `json:"attemptId"`
	Status        domain.AttemptStatus `json:"status"`
	RemainingTime *float64             `json:"remainingTime"`
}

func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.TestID == "" {
		h.fail(w, r, fmt.Errorf("testId is required: %w", domain.ErrInvalidInput))
		return
	}
	attempt, err := h.attempts.StartAttempt(r.Context(), caller.ID, req.TestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *AttemptHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var req submitAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.QuestionID == "" {
		h.fail(w, r, fmt.Errorf("questionId is required: %w", domain.ErrInvalidInput))
		return
	}
	answers, err := h.attempts.SubmitAnswer(r.Context(), mux.Vars(r)["attemptId"], caller.ID, req.QuestionID, req.AnswerPayload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, answers)
}

func (h *AttemptHandler) Complete(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	attempt, err := h.attempts.CompleteTest(r.Context(), mux.Vars(r)["attemptId"], caller.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *AttemptHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	view, err := h.attempts.GetAttempt(r.Context(), mux.Vars(r)["attemptId"], caller.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemainingTime shares GetAttempt's semantics, including expiry on read.
func (h *AttemptHandler) RemainingTime(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	view, err := h.attempts.GetAttempt(r.Context(), mux.Vars(r)["attemptId"], caller.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remainingTimeResponse{
		AttemptID:     view.ID,
		Status:        view.Status,
		RemainingTime: view.RemainingMinutes,
	})
}

func (h *AttemptHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	attempts, err := h.attempts.GetUserAttempts(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *AttemptHandler) TestAttempts(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	attempts, err := h.attempts.GetTestAttempts(r.Context(), mux.Vars(r)["testId"], caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *AttemptHandler) TestStatistics(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	stats, err := h.attempts.GetTestStatistics(r.Context(), mux.Vars(r)["testId"], caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AttemptHandler) Details(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	details, err := h.attempts.GetAttemptDetails(r.Context(), mux.Vars(r)["attemptId"], caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *AttemptHandler) CreatorStatistics(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	stats, err := h.stats.CreatorStatistics(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AttemptHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	return nil
}
