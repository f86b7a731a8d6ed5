package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptWSHandler lets the attempt owner drive an attempt over one websocket.
// Every inbound message gets exactly one reply; nothing is pushed unprompted.
type AttemptWSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewAttemptWSHandler(service *app.AttemptService, logger *slog.Logger) *AttemptWSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptWSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerResult struct {
	QuestionID string          `json:"questionId"`
	Answers    []domain.Answer `json:"answers"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and serves answer, complete and status messages.
func (h *AttemptWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}
	attemptID := mux.Vars(r)["attemptId"]

	// fail before upgrading so unknown or foreign attempts get a plain HTTP error
	if _, err := h.service.GetAttempt(r.Context(), attemptID, caller.ID); err != nil && !errors.Is(err, domain.ErrExpired) {
		writeError(w, r, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "attempt_id", attemptID, "error", err)
		return
	}
	defer conn.Close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("ws read failed", "attempt_id", attemptID, "error", err)
			}
			return
		}
		reply := h.handle(r, attemptID, caller.ID, inbound)
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn("ws write failed", "attempt_id", attemptID, "error", err)
			return
		}
	}
}

func (h *AttemptWSHandler) handle(r *http.Request, attemptID, userID string, inbound inboundMessage) outboundMessage[any] {
	ctx := r.Context()
	switch inbound.Type {
	case "answer":
		var req submitAnswerRequest
		if err := json.Unmarshal(inbound.Payload, &req); err != nil || req.QuestionID == "" {
			return h.errorMessage(fmt.Errorf("invalid answer payload: %w", domain.ErrInvalidInput))
		}
		answers, err := h.service.SubmitAnswer(ctx, attemptID, userID, req.QuestionID, req.AnswerPayload)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage[any]{Type: "answerResult", Payload: answerResult{QuestionID: req.QuestionID, Answers: answers}}
	case "complete":
		attempt, err := h.service.CompleteTest(ctx, attemptID, userID)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage[any]{Type: "completed", Payload: attempt}
	case "status":
		view, err := h.service.GetAttempt(ctx, attemptID, userID)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage[any]{Type: "attempt", Payload: view}
	default:
		return h.errorMessage(fmt.Errorf("unsupported message type %q: %w", inbound.Type, domain.ErrInvalidInput))
	}
}

func (h *AttemptWSHandler) errorMessage(err error) outboundMessage[any] {
	_, payload := errorResponse(err)
	if payload.Code == "internal" {
		h.logger.Error("ws request failed", "error", err)
	}
	return outboundMessage[any]{Type: "error", Payload: payload}
}
