// Package api implements the HTTP request surface: session CRUD and
// lifecycle control, the per-user model roster, and the websocket event
// transport, all as chi handlers over the orchestrator and credential
// packages.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/shriramnat/ai-decision-council/internal/credential"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
	"github.com/shriramnat/ai-decision-council/internal/orchestrator"
	"github.com/shriramnat/ai-decision-council/internal/store"
)

// Handler holds the dependencies every route needs. Individual route groups
// (sessions, models, events) are methods on this type rather than separate
// structs, since they all share the same four collaborators.
type Handler struct {
	store store.Store
	creds *credential.Store
	mgr   *orchestrator.Manager
	hub   *eventhub.Hub
}

func NewHandler(db store.Store, creds *credential.Store, mgr *orchestrator.Manager, hub *eventhub.Hub) *Handler {
	return &Handler{store: db, creds: creds, mgr: mgr, hub: hub}
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error body of the shape {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
