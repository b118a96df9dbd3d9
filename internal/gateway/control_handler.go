package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/leaderboard"
	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/session"
)

// AdminControl defines the session control actions the admin console can
// trigger. Only this surface advances the state machine; guests never do.
type AdminControl interface {
	CreateSession(ctx context.Context, req session.CreateSessionRequest) (*models.Session, error)
	OpenLobby(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ActivateQuestion(ctx context.Context, id uuid.UUID, index int) (*models.Session, error)
	ActivateNext(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Reveal(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ShowLeaderboard(ctx context.Context, id uuid.UUID) (*models.Session, error)
	CompleteSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Leaderboard(ctx context.Context, id uuid.UUID) ([]leaderboard.Entry, error)
}

// RevealWaker nudges the auto-reveal scheduler after an activation so it
// re-reads the next deadline without waiting for the event to arrive.
type RevealWaker interface {
	Wake()
}

// ControlHandler serves the administrator's session control endpoints
type ControlHandler struct {
	control          AdminControl
	state            *StateHandler
	waker            RevealWaker
	defaultTimeLimit int
}

// NewControlHandler creates a new control handler. defaultTimeLimitSec is
// applied when a create request omits the per-question time limit; waker
// may be nil when the reveal scheduler runs in a separate process.
func NewControlHandler(control AdminControl, state *StateHandler, waker RevealWaker, defaultTimeLimitSec int) *ControlHandler {
	return &ControlHandler{
		control:          control,
		state:            state,
		waker:            waker,
		defaultTimeLimit: defaultTimeLimitSec,
	}
}

type createSessionRequest struct {
	QuestionSetID string `json:"question_set_id"`
	TimeLimitSec  int    `json:"time_limit_sec"`
}

type activateQuestionRequest struct {
	Index int `json:"index"`
}

// HandleCreateSession handles POST /api/quiz/sessions
func (ch *ControlHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	questionSetID, err := uuid.Parse(req.QuestionSetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question_set_id")
		return
	}

	timeLimit := req.TimeLimitSec
	if timeLimit == 0 {
		timeLimit = ch.defaultTimeLimit
	}

	sess, err := ch.control.CreateSession(r.Context(), session.CreateSessionRequest{
		QuestionSetID: questionSetID,
		TimeLimitSec:  timeLimit,
	})
	if err != nil {
		ch.writeControlError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// HandleSessionAction dispatches /api/quiz/sessions/{sessionId}/{action}
func (ch *ControlHandler) HandleSessionAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// Expect: api / quiz / sessions / {sessionId} / {action}
	if len(parts) != 5 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	sessionID, err := uuid.Parse(parts[3])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID in path")
		return
	}
	action := parts[4]

	if action == "state" {
		ch.state.HandleGetSessionState(w, r)
		return
	}
	if action == "leaderboard" && r.Method == http.MethodGet {
		ch.handleGetLeaderboard(w, r, sessionID)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var sess *models.Session
	switch action {
	case "open":
		sess, err = ch.control.OpenLobby(r.Context(), sessionID)
	case "activate":
		var req activateQuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sess, err = ch.control.ActivateQuestion(r.Context(), sessionID, req.Index)
	case "next":
		sess, err = ch.control.ActivateNext(r.Context(), sessionID)
	case "reveal":
		sess, err = ch.control.Reveal(r.Context(), sessionID)
	case "leaderboard":
		sess, err = ch.control.ShowLeaderboard(r.Context(), sessionID)
	case "complete":
		sess, err = ch.control.CompleteSession(r.Context(), sessionID)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	if err != nil {
		ch.writeControlError(w, err)
		return
	}

	// The schedule changed; let the reveal loop re-read it immediately.
	if ch.waker != nil && (action == "activate" || action == "next" || action == "reveal" || action == "complete") {
		ch.waker.Wake()
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("action", action).
		Str("phase", string(sess.Phase)).
		Msg("session control action applied")

	writeJSON(w, http.StatusOK, sess)
}

func (ch *ControlHandler) handleGetLeaderboard(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	entries, err := ch.control.Leaderboard(r.Context(), sessionID)
	if err != nil {
		ch.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (ch *ControlHandler) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionExists):
		writeError(w, http.StatusConflict, "a live session already exists")
	case errors.Is(err, session.ErrPhaseConflict):
		writeError(w, http.StatusConflict, "session phase changed; refresh and retry")
	default:
		log.Error().Err(err).Msg("session control action failed")
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// RegisterControlRoutes registers admin control routes with the HTTP mux
func (ch *ControlHandler) RegisterControlRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/quiz/sessions", ch.HandleCreateSession)
	mux.HandleFunc("/api/quiz/sessions/", ch.HandleSessionAction)
	log.Info().Msg("control routes registered")
}
