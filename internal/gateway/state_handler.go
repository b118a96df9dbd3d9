package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/session"
)

// StateProvider defines the interface for retrieving recovered client state
type StateProvider interface {
	GetClientState(ctx context.Context, partyID *uuid.UUID) (*ClientState, error)
	GetSessionState(ctx context.Context, sessionID uuid.UUID, partyID *uuid.UUID) (*ClientState, error)
}

// StateHandler serves the recovery endpoints clients hit on mount or
// reconnect.
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{provider: provider}
}

// HandleGetQuizState handles GET /api/quiz/state?party_id=<uuid>
// It resolves the most recent non-terminal session itself, so a client
// needs no prior knowledge to recover.
func (sh *StateHandler) HandleGetQuizState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	partyID, err := parseOptionalPartyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := sh.provider.GetClientState(r.Context(), partyID)
	if err != nil {
		log.Error().Err(err).Msg("failed to build client state")
		writeError(w, http.StatusInternalServerError, "failed to build client state")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// HandleGetSessionState handles GET /api/quiz/sessions/{sessionId}/state
func (sh *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID, err := extractSessionIDFromPath(r.URL.Path, "/state")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	partyID, err := parseOptionalPartyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := sh.provider.GetSessionState(r.Context(), sessionID, partyID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to build session state")
		writeError(w, http.StatusInternalServerError, "failed to build session state")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// RegisterStateRoutes registers the recovery endpoints with the HTTP mux
func (sh *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/quiz/state", sh.HandleGetQuizState)
	log.Info().Msg("state routes registered")
}

// extractSessionIDFromPath parses a session UUID out of paths shaped like
// /api/quiz/sessions/{sessionId}{suffix}
func extractSessionIDFromPath(path, suffix string) (uuid.UUID, error) {
	trimmed := strings.TrimSuffix(path, suffix)
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 0 {
		return uuid.Nil, errors.New("session ID missing from path")
	}
	id, err := uuid.Parse(parts[len(parts)-1])
	if err != nil {
		return uuid.Nil, errors.New("invalid session ID in path")
	}
	return id, nil
}
