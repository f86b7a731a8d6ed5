package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the REST and websocket endpoints behind the authenticator.
func NewRouter(h *AttemptHandler, ws *AttemptWSHandler, auth *Authenticator) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)

	// creator routes first so literal segments win over {attemptId}
	api.HandleFunc("/test-attempts/test/{testId}/attempts", RequireCreator(h.TestAttempts)).Methods(http.MethodGet)
	api.HandleFunc("/test-attempts/test/{testId}/statistics", RequireCreator(h.TestStatistics)).Methods(http.MethodGet)
	api.HandleFunc("/test-attempts/details/{attemptId}", RequireCreator(h.Details)).Methods(http.MethodGet)
	api.HandleFunc("/statistics", RequireCreator(h.CreatorStatistics)).Methods(http.MethodGet)

	api.HandleFunc("/test-attempts/start", h.Start).Methods(http.MethodPost)
	api.HandleFunc("/test-attempts", h.ListMine).Methods(http.MethodGet)
	api.HandleFunc("/test-attempts/{attemptId}/answer", h.SubmitAnswer).Methods(http.MethodPost)
	api.HandleFunc("/test-attempts/{attemptId}/complete", h.Complete).Methods(http.MethodPost)
	api.HandleFunc("/test-attempts/{attemptId}/time", h.RemainingTime).Methods(http.MethodGet)
	api.HandleFunc("/test-attempts/{attemptId}/ws", ws.ServeWS).Methods(http.MethodGet)
	api.HandleFunc("/test-attempts/{attemptId}", h.Get).Methods(http.MethodGet)
	return r
}
