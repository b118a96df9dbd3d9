package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/david2928/wedding-sub000/internal/answer"
	"github.com/david2928/wedding-sub000/internal/leaderboard"
	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/participant"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
	"github.com/david2928/wedding-sub000/internal/session"
)

// ViewKind names the screen a client should render after recovery.
type ViewKind string

const (
	ViewNoActiveSession ViewKind = "no_active_session"
	ViewLobby           ViewKind = "lobby"
	ViewQuestionLive    ViewKind = "question_live"
	ViewAlreadyAnswered ViewKind = "already_answered"
	ViewAwaitingResults ViewKind = "awaiting_results"
	ViewAnswerRevealed  ViewKind = "answer_revealed"
	ViewLeaderboard     ViewKind = "leaderboard"
	ViewCompleted       ViewKind = "completed"
)

// SessionView is the session fields a client needs to render state.
type SessionView struct {
	ID                   string              `json:"id"`
	Phase                models.SessionPhase `json:"phase"`
	CurrentQuestionIndex int                 `json:"current_question_index"`
	TimeLimitSec         int                 `json:"time_limit_sec"`
}

// QuestionView is a question as shown to clients. It never carries the
// correct option; that arrives only via CorrectOption on ClientState once
// the phase permits it.
type QuestionView struct {
	ID           string              `json:"id"`
	Index        int                 `json:"index"`
	Prompt       string              `json:"prompt"`
	Options      []events.OptionView `json:"options"`
	ImageURL     *string             `json:"image_url,omitempty"`
	TimeLimitSec int                 `json:"time_limit_sec"`
}

// ClientState is everything a client needs to reconstruct its UI from the
// store alone. It is computed fresh on every request; nothing in it
// depends on the client having seen any broadcast.
type ClientState struct {
	View       ViewKind  `json:"view"`
	ServerTime time.Time `json:"server_time"`

	Session  *SessionView  `json:"session,omitempty"`
	Question *QuestionView `json:"question,omitempty"`

	// Set while a question is live (or would be, absent the overdue check).
	Deadline    *time.Time `json:"deadline,omitempty"`
	RemainingMs *int64     `json:"remaining_ms,omitempty"`

	// Set once the phase permits revealing the answer.
	CorrectOption *models.OptionLabel `json:"correct_option,omitempty"`
	Stats         *models.AnswerStats `json:"stats,omitempty"`

	// Per-party state, present only when a party identity was supplied.
	Participant *models.Participant `json:"participant,omitempty"`
	YourAnswer  *models.Answer      `json:"your_answer,omitempty"`

	ParticipantCount int                 `json:"participant_count"`
	Leaderboard      []leaderboard.Entry `json:"leaderboard,omitempty"`
}

// SessionReader defines the session lookups recovery needs
type SessionReader interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetCurrentSession(ctx context.Context) (*models.Session, error)
	Leaderboard(ctx context.Context, id uuid.UUID) ([]leaderboard.Entry, error)
}

// QuestionReader defines the question lookups recovery needs
type QuestionReader interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
}

// ParticipantReader defines the participant lookups recovery needs
type ParticipantReader interface {
	GetParticipant(ctx context.Context, sessionID, partyID uuid.UUID) (*models.Participant, error)
	CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// AnswerReader defines the answer lookups recovery needs
type AnswerReader interface {
	GetAnswer(ctx context.Context, sessionID, questionID, partyID uuid.UUID) (*models.Answer, error)
	StatsForQuestion(ctx context.Context, sessionID, questionID uuid.UUID) (*models.AnswerStats, error)
}

// StateService reconstructs client state from the store and the wall
// clock. Every client runs this on mount or reconnect instead of trusting
// whatever broadcasts it did or did not receive, so a dropped event,
// a refresh mid-question, or a network partition all self-heal here.
type StateService struct {
	sessions     SessionReader
	questions    QuestionReader
	participants ParticipantReader
	answers      AnswerReader
	clock        clockwork.Clock
}

// NewStateService creates a new recovery state service
func NewStateService(sessions SessionReader, questions QuestionReader, participants ParticipantReader, answers AnswerReader) *StateService {
	return &StateService{
		sessions:     sessions,
		questions:    questions,
		participants: participants,
		answers:      answers,
		clock:        clockwork.NewRealClock(),
	}
}

// GetClientState resolves the most recent non-terminal session and builds
// the state for it. partyID may be nil for spectators and the admin
// console.
func (s *StateService) GetClientState(ctx context.Context, partyID *uuid.UUID) (*ClientState, error) {
	sess, err := s.sessions.GetCurrentSession(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoCurrentSession) {
			return &ClientState{
				View:       ViewNoActiveSession,
				ServerTime: s.clock.Now().UTC(),
			}, nil
		}
		return nil, fmt.Errorf("failed to fetch current session: %w", err)
	}
	return s.buildState(ctx, sess, partyID)
}

// GetSessionState builds the state for one specific session, including
// terminal ones (a completed session still renders its final rankings).
func (s *StateService) GetSessionState(ctx context.Context, sessionID uuid.UUID, partyID *uuid.UUID) (*ClientState, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	return s.buildState(ctx, sess, partyID)
}

func (s *StateService) buildState(ctx context.Context, sess *models.Session, partyID *uuid.UUID) (*ClientState, error) {
	now := s.clock.Now().UTC()
	state := &ClientState{
		ServerTime: now,
		Session: &SessionView{
			ID:                   sess.ID.String(),
			Phase:                sess.Phase,
			CurrentQuestionIndex: sess.CurrentQuestionIndex,
			TimeLimitSec:         sess.TimeLimitSec,
		},
	}

	count, err := s.participants.CountParticipants(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	state.ParticipantCount = count

	if partyID != nil {
		p, err := s.participants.GetParticipant(ctx, sess.ID, *partyID)
		if err != nil && !errors.Is(err, participant.ErrNotFound) {
			return nil, fmt.Errorf("failed to fetch participant: %w", err)
		}
		state.Participant = p
	}

	switch sess.Phase {
	case models.PhaseIdle, models.PhaseWaiting:
		state.View = ViewLobby
		return state, nil

	case models.PhaseActive:
		return s.buildActiveState(ctx, sess, partyID, state, now)

	case models.PhaseShowingAnswer:
		return s.buildRevealedState(ctx, sess, partyID, state)

	case models.PhaseLeaderboard:
		state.View = ViewLeaderboard
		return s.attachLeaderboard(ctx, sess, state)

	case models.PhaseCompleted:
		state.View = ViewCompleted
		return s.attachLeaderboard(ctx, sess, state)

	default:
		return nil, fmt.Errorf("unknown session phase: %s", sess.Phase)
	}
}

// buildActiveState handles phase = ACTIVE. The deadline is computed from
// the stored question_started_at, never from anything client-side. Past
// the deadline the store may not have transitioned yet (the auto-reveal
// applies it eventually); the client still renders "awaiting results"
// rather than a dead countdown.
func (s *StateService) buildActiveState(ctx context.Context, sess *models.Session, partyID *uuid.UUID, state *ClientState, now time.Time) (*ClientState, error) {
	if sess.CurrentQuestionID == nil {
		return nil, fmt.Errorf("active session %s has no current question", sess.ID)
	}

	q, err := s.questions.GetQuestion(ctx, *sess.CurrentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current question: %w", err)
	}
	state.Question = newQuestionView(q, sess)

	deadline, ok := sess.QuestionDeadline()
	if !ok {
		return nil, fmt.Errorf("active session %s has no question start time", sess.ID)
	}
	state.Deadline = &deadline

	if partyID != nil {
		existing, err := s.answers.GetAnswer(ctx, sess.ID, q.ID, *partyID)
		if err != nil && !errors.Is(err, answer.ErrNotFound) {
			return nil, fmt.Errorf("failed to fetch own answer: %w", err)
		}
		if existing != nil {
			// Already answered trumps the deadline check.
			state.View = ViewAlreadyAnswered
			state.YourAnswer = existing
			return state, nil
		}
	}

	if now.After(deadline) {
		state.View = ViewAwaitingResults
		return state, nil
	}

	remaining := deadline.Sub(now).Milliseconds()
	state.View = ViewQuestionLive
	state.RemainingMs = &remaining
	return state, nil
}

// buildRevealedState handles phase = SHOWING_ANSWER: question, correct
// option, the party's own answer, and stats recomputed from the stored
// answers.
func (s *StateService) buildRevealedState(ctx context.Context, sess *models.Session, partyID *uuid.UUID, state *ClientState) (*ClientState, error) {
	if sess.CurrentQuestionID == nil {
		return nil, fmt.Errorf("revealed session %s has no current question", sess.ID)
	}

	q, err := s.questions.GetQuestion(ctx, *sess.CurrentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch revealed question: %w", err)
	}
	state.View = ViewAnswerRevealed
	state.Question = newQuestionView(q, sess)
	state.CorrectOption = &q.CorrectOption

	stats, err := s.answers.StatsForQuestion(ctx, sess.ID, q.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute answer stats: %w", err)
	}
	state.Stats = stats

	if partyID != nil {
		existing, err := s.answers.GetAnswer(ctx, sess.ID, q.ID, *partyID)
		if err != nil && !errors.Is(err, answer.ErrNotFound) {
			return nil, fmt.Errorf("failed to fetch own answer: %w", err)
		}
		state.YourAnswer = existing
	}
	return state, nil
}

func (s *StateService) attachLeaderboard(ctx context.Context, sess *models.Session, state *ClientState) (*ClientState, error) {
	entries, err := s.sessions.Leaderboard(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to rank leaderboard: %w", err)
	}
	state.Leaderboard = entries
	return state, nil
}

func newQuestionView(q *models.Question, sess *models.Session) *QuestionView {
	options := make([]events.OptionView, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, events.OptionView{Label: string(opt.Label), Text: opt.Text})
	}
	return &QuestionView{
		ID:           q.ID.String(),
		Index:        sess.CurrentQuestionIndex,
		Prompt:       q.Prompt,
		Options:      options,
		ImageURL:     q.ImageURL,
		TimeLimitSec: sess.TimeLimitSec,
	}
}
