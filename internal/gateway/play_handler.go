package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/answer"
	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/participant"
)

// JoinService defines what the play surface needs for enrolling parties
type JoinService interface {
	JoinSession(ctx context.Context, req participant.JoinRequest) (*models.Participant, error)
}

// AnswerService defines what the play surface needs for answer submission
type AnswerService interface {
	Submit(ctx context.Context, req answer.SubmitRequest) (*models.Answer, error)
	ListAnswersByParty(ctx context.Context, sessionID, partyID uuid.UUID) ([]models.Answer, error)
}

// PlayHandler serves the guest-facing endpoints: joining a session and
// submitting answers. Everything here is safe to retry; duplicates are
// absorbed by the store, not the client.
type PlayHandler struct {
	joins   JoinService
	answers AnswerService
}

// NewPlayHandler creates a new play handler
func NewPlayHandler(joins JoinService, answers AnswerService) *PlayHandler {
	return &PlayHandler{
		joins:   joins,
		answers: answers,
	}
}

type joinRequest struct {
	SessionID   string `json:"session_id"`
	PartyID     string `json:"party_id"`
	DisplayName string `json:"display_name"`
	BonusPoints int    `json:"bonus_points"`
}

type submitAnswerRequest struct {
	SessionID    string `json:"session_id"`
	QuestionID   string `json:"question_id"`
	PartyID      string `json:"party_id"`
	ChosenOption string `json:"chosen_option"`
}

type submitAnswerResponse struct {
	Answer          *models.Answer `json:"answer"`
	AlreadyAnswered bool           `json:"already_answered"`
}

// HandleJoin handles POST /api/quiz/join
func (ph *PlayHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}
	partyID, err := uuid.Parse(req.PartyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid party_id")
		return
	}

	p, err := ph.joins.JoinSession(r.Context(), participant.JoinRequest{
		SessionID:   sessionID,
		PartyID:     partyID,
		DisplayName: req.DisplayName,
		BonusPoints: req.BonusPoints,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Str("party_id", req.PartyID).Msg("join failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Rejoins land here too; the response is the stored row either way.
	writeJSON(w, http.StatusOK, p)
}

// HandleSubmitAnswer handles POST /api/quiz/answers
func (ph *PlayHandler) HandleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		ph.handleListMyAnswers(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question_id")
		return
	}
	partyID, err := uuid.Parse(req.PartyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid party_id")
		return
	}

	a, err := ph.answers.Submit(r.Context(), answer.SubmitRequest{
		SessionID:    sessionID,
		QuestionID:   questionID,
		PartyID:      partyID,
		ChosenOption: models.OptionLabel(req.ChosenOption),
	})
	if err != nil {
		switch {
		case errors.Is(err, answer.ErrAlreadyAnswered):
			// Success-if-already-applied: a tab racing a recovery reload
			// gets the first stored answer back, never a second insert.
			writeJSON(w, http.StatusOK, submitAnswerResponse{Answer: a, AlreadyAnswered: true})
		case errors.Is(err, answer.ErrQuestionClosed):
			writeError(w, http.StatusConflict, "question closed")
		case errors.Is(err, answer.ErrNotParticipant):
			writeError(w, http.StatusForbidden, "join the session before answering")
		default:
			log.Error().
				Err(err).
				Str("session_id", req.SessionID).
				Str("party_id", req.PartyID).
				Msg("answer submission failed")
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, submitAnswerResponse{Answer: a})
}

// handleListMyAnswers handles GET /api/quiz/answers?session_id=&party_id=
func (ph *PlayHandler) handleListMyAnswers(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}
	partyID, err := uuid.Parse(r.URL.Query().Get("party_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid party_id")
		return
	}

	answers, err := ph.answers.ListAnswersByParty(r.Context(), sessionID, partyID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to list answers")
		writeError(w, http.StatusInternalServerError, "failed to list answers")
		return
	}

	writeJSON(w, http.StatusOK, answers)
}

// RegisterPlayRoutes registers guest-facing routes with the HTTP mux
func (ph *PlayHandler) RegisterPlayRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/quiz/join", ph.HandleJoin)
	mux.HandleFunc("/api/quiz/answers", ph.HandleSubmitAnswer)
	log.Info().Msg("play routes registered")
}
