package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shriramnat/ai-decision-council/internal/middleware"
)

// NewRouter assembles the full request surface: session lifecycle, the
// model roster, the websocket event stream, and the operational endpoints
// (/healthz, /metrics) outside the user-scoped route group.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireUserEmail)

		r.Post("/session", h.CreateSession)
		r.Get("/session/{id}", h.GetSession)
		r.Delete("/session/{id}", h.DeleteSession)
		r.Post("/session/{id}/start", h.StartSession)
		r.Post("/session/{id}/step", h.StepSession)
		r.Post("/session/{id}/stop", h.StopSession)
		r.Post("/session/{id}/reset-memory/{personaId}", h.ResetPersonaMemory)
		r.Get("/session/{id}/feedback-rounds", h.ListFeedbackRounds)
		r.Post("/session/{id}/feedback", h.AttachFeedback)
		r.Post("/session/{id}/iterate-with-feedback", h.IterateWithFeedback)
		r.Get("/session/{id}/events", h.StreamEvents)

		r.Get("/sessions", h.ListSessions)

		r.Get("/models", h.ListModels)
		r.Post("/models", h.AddModel)
		r.Put("/models/{id}", h.UpdateModel)
		r.Delete("/models/{id}", h.DeleteModel)
	})

	return r
}
