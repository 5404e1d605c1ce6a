package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shriramnat/ai-decision-council/internal/apperr"
	"github.com/shriramnat/ai-decision-council/internal/domain"
	"github.com/shriramnat/ai-decision-council/internal/orchestrator"
	"github.com/shriramnat/ai-decision-council/internal/store"
)

type createSessionRequest struct {
	Name                   string                  `json:"name"`
	Topic                  string                  `json:"topic"`
	MaxIterations          int                     `json:"maxIterations"`
	StopMarker             string                  `json:"stopMarker"`
	StopOnReviewerApproved bool                    `json:"stopOnReviewerApproved"`
	RunMode                domain.RunMode          `json:"runMode"`
	CreatorConfig          domain.PersonaConfig    `json:"creatorConfig"`
	ReviewersConfig        []domain.ReviewerConfig `json:"reviewersConfig"`
}

// CreateSession handles POST /session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Topic == "" {
		Error(w, http.StatusBadRequest, "topic is required")
		return
	}
	if req.MaxIterations <= 0 {
		Error(w, http.StatusBadRequest, "maxIterations must be positive")
		return
	}

	runMode := req.RunMode
	if runMode == "" {
		runMode = domain.RunModeAuto
	}

	for i := range req.ReviewersConfig {
		if req.ReviewersConfig[i].ID == "" {
			req.ReviewersConfig[i].ID = uuid.NewString()
		}
	}

	sess := &domain.Session{
		ID:                     uuid.NewString(),
		UserEmail:              UserEmailFromContext(r.Context()),
		Name:                   req.Name,
		Status:                 domain.StatusCreated,
		StopReason:             domain.StopReasonNone,
		MaxIterations:          req.MaxIterations,
		StopMarker:             req.StopMarker,
		StopOnReviewerApproved: req.StopOnReviewerApproved,
		RunMode:                runMode,
		Topic:                  req.Topic,
		CreatorConfig:          req.CreatorConfig,
		ReviewersConfig:        req.ReviewersConfig,
		CreatedAt:              time.Now(),
		UpdatedAt:              time.Now(),
	}

	if err := h.store.CreateSession(r.Context(), sess); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /session/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sess)
}

// ListSessions handles GET /sessions, scoped to the calling user and
// ordered newest-updated first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.ListSessions(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	userEmail := UserEmailFromContext(r.Context())
	mine := make([]*domain.Session, 0, len(all))
	for _, s := range all {
		if s.UserEmail == userEmail {
			mine = append(mine, s)
		}
	}
	JSON(w, http.StatusOK, mine)
}

// StartSession handles POST /session/{id}/start.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	h.beginSession(w, r, h.mgr.Start)
}

// StepSession handles POST /session/{id}/step.
func (h *Handler) StepSession(w http.ResponseWriter, r *http.Request) {
	h.beginSession(w, r, h.mgr.Step)
}

// beginSession runs the common start/step request handling: load the
// session so a bad id gets a 404 before the orchestrator ever sees it, then
// hand off to whichever Manager method the caller wants (Start or Step).
// Both kick off the run in the Manager's own goroutine and return
// immediately; the caller follows progress over the websocket event stream.
func (h *Handler) beginSession(w http.ResponseWriter, r *http.Request, begin func(ctx context.Context, sessionID string) error) {
	id := chi.URLParam(r, "id")
	if _, ok := h.loadSessionByID(w, r, id); !ok {
		return
	}
	if err := begin(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "running"})
}

// StopSession handles POST /session/{id}/stop. Idempotent: stopping a
// session with no active run is a no-op, not an error.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.loadSessionByID(w, r, id); !ok {
		return
	}
	h.mgr.Stop(id)
	JSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// DeleteSession handles DELETE /session/{id}: cancel if running, then
// cascade-delete.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.loadSessionByID(w, r, id)
	if !ok {
		return
	}
	if sess.Status == domain.StatusRunning {
		h.mgr.Stop(id)
	}
	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPersonaMemory handles POST /session/{id}/reset-memory/{personaId}.
func (h *Handler) ResetPersonaMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	personaID := chi.URLParam(r, "personaId")
	if _, ok := h.loadSessionByID(w, r, id); !ok {
		return
	}
	if err := h.mgr.ResetMemory(r.Context(), id, personaID); err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ListFeedbackRounds handles GET /session/{id}/feedback-rounds.
func (h *Handler) ListFeedbackRounds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.loadSessionByID(w, r, id); !ok {
		return
	}
	rounds, err := h.store.ListFeedbackRounds(r.Context(), id)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, rounds)
}

type attachFeedbackRequest struct {
	Iteration int    `json:"iteration"`
	Text      string `json:"text"`
}

// AttachFeedback handles POST /session/{id}/feedback.
func (h *Handler) AttachFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.loadSessionByID(w, r, id); !ok {
		return
	}

	var req attachFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.mgr.AttachFeedback(r.Context(), id, req.Iteration, req.Text); err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

type iterateWithFeedbackRequest struct {
	Comments                string `json:"comments"`
	Tone                    string `json:"tone"`
	Length                  string `json:"length"`
	Audience                string `json:"audience"`
	MaxAdditionalIterations int    `json:"maxAdditionalIterations"`
}

// IterateWithFeedback handles POST /session/{id}/iterate-with-feedback.
func (h *Handler) IterateWithFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.loadSessionByID(w, r, id); !ok {
		return
	}

	var req iterateWithFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.mgr.ReIterate(r.Context(), id, orchestrator.ReIterateInput{
		Comments:                req.Comments,
		Tone:                    req.Tone,
		Length:                  req.Length,
		Audience:                req.Audience,
		MaxAdditionalIterations: req.MaxAdditionalIterations,
	}); err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "iterating"})
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	return h.loadSessionByID(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) loadSessionByID(w http.ResponseWriter, r *http.Request, id string) (*domain.Session, bool) {
	sess, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
		} else {
			Error(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return sess, true
}

// writeErr maps an internal/apperr sentinel to the disposition spec §7
// prescribes; anything unrecognized falls back to 500.
func writeErr(w http.ResponseWriter, err error) {
	var notConfigured *apperr.NotConfigured
	var validationErr *apperr.ValidationError
	var conflictErr *apperr.ConflictError
	var cryptoErr *apperr.CryptoError
	var notImplemented *apperr.NotImplemented

	switch {
	case errors.As(err, &notConfigured):
		Error(w, http.StatusBadRequest, notConfigured.Error())
	case errors.As(err, &validationErr):
		Error(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &conflictErr):
		Error(w, http.StatusBadRequest, conflictErr.Error())
	case errors.As(err, &cryptoErr):
		Error(w, http.StatusInternalServerError, cryptoErr.Error())
	case errors.As(err, &notImplemented):
		Error(w, http.StatusBadRequest, notImplemented.Error())
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
