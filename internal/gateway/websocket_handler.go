package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for quiz sessions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleWebSocket handles WebSocket upgrade requests
// Expected URL format: /ws/quiz?session_id=<uuid>&party_id=<id>
func (wsh *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := r.URL.Query().Get("session_id")
	if sessionIDStr == "" {
		http.Error(w, "session_id parameter required", http.StatusBadRequest)
		return
	}

	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}

	// party_id is optional: the big screen and admin console connect
	// without one and just watch the stream.
	partyID := r.URL.Query().Get("party_id")

	if err := wsh.connectionManager.UpgradeConnection(w, r, partyID, sessionID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("party_id", partyID).
			Msg("failed to establish WebSocket connection")
		// UpgradeConnection already wrote an error response
		return
	}
}

// HandleConnectionStats returns connection statistics (for monitoring)
func (wsh *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := wsh.connectionManager.GetConnectionStats()
	writeJSON(w, http.StatusOK, stats)
}

// RegisterRoutes registers WebSocket routes with the HTTP mux
func (wsh *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/quiz", wsh.HandleWebSocket)
	mux.HandleFunc("/ws/stats", wsh.HandleConnectionStats)

	log.Info().Msg("WebSocket routes registered")
}
