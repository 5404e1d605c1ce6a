package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shriramnat/ai-decision-council/internal/credential"
	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// ListModels handles GET /models: every configured model for the calling
// user, keys never included since ConfiguredModel.EncryptedKey carries
// json:"-".
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.creds.List(r.Context(), UserEmailFromContext(r.Context()))
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, models)
}

type addModelRequest struct {
	ModelName    string          `json:"modelName"`
	DisplayName  string          `json:"displayName"`
	Endpoint     string          `json:"endpoint"`
	Provider     domain.Provider `json:"provider"`
	PlaintextKey string          `json:"apiKey"`
}

// AddModel handles POST /models.
func (h *Handler) AddModel(w http.ResponseWriter, r *http.Request) {
	var req addModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ModelName == "" {
		Error(w, http.StatusBadRequest, "modelName is required")
		return
	}

	m, err := h.creds.Add(r.Context(), UserEmailFromContext(r.Context()), credential.AddInput{
		ModelName:    req.ModelName,
		DisplayName:  req.DisplayName,
		Endpoint:     req.Endpoint,
		Provider:     req.Provider,
		PlaintextKey: req.PlaintextKey,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusCreated, m)
}

type updateModelRequest struct {
	ModelName    *string          `json:"modelName"`
	DisplayName  *string          `json:"displayName"`
	Endpoint     *string          `json:"endpoint"`
	Provider     *domain.Provider `json:"provider"`
	PlaintextKey *string          `json:"apiKey"`
}

// UpdateModel handles PUT /models/{id}. A nil field in the request body
// leaves the stored value untouched; the key is only reset when the caller
// supplies a new apiKey.
func (h *Handler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.creds.Update(r.Context(), UserEmailFromContext(r.Context()), id, credential.UpdateInput{
		ModelName:    req.ModelName,
		DisplayName:  req.DisplayName,
		Endpoint:     req.Endpoint,
		Provider:     req.Provider,
		PlaintextKey: req.PlaintextKey,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteModel handles DELETE /models/{id}.
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.creds.Delete(r.Context(), UserEmailFromContext(r.Context()), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
