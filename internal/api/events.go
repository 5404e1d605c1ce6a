package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sessions are addressed by an unguessable id and scoped by the
	// X-User-Email header on every other route, not by browser origin, so
	// the origin check that CheckOrigin defaults to has nothing to add here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const pingInterval = 30 * time.Second

// StreamEvents handles GET /session/{id}/events: upgrades to a websocket
// and relays every eventhub.Event published for this session id as a JSON
// frame until the client disconnects or a write to it fails.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, ok := h.loadSessionByID(w, r, sessionID); !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sessionID, sub)

	// Reading discards whatever the client sends, but is required to
	// notice a client-initiated close frame and unblock this goroutine.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
