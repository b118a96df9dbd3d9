package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionPhase defines the state-machine position of a quiz session.
type SessionPhase string

const (
	PhaseIdle          SessionPhase = "IDLE"
	PhaseWaiting       SessionPhase = "WAITING"
	PhaseActive        SessionPhase = "ACTIVE"
	PhaseShowingAnswer SessionPhase = "SHOWING_ANSWER"
	PhaseLeaderboard   SessionPhase = "LEADERBOARD"
	PhaseCompleted     SessionPhase = "COMPLETED"
)

// Terminal reports whether the phase allows no further transitions.
func (p SessionPhase) Terminal() bool {
	return p == PhaseCompleted
}

// Session represents one live quiz run. At most one session is in a
// non-terminal phase at a time; historical completed sessions may coexist.
type Session struct {
	ID                   uuid.UUID    `json:"id"`
	QuestionSetID        uuid.UUID    `json:"question_set_id"`
	Phase                SessionPhase `json:"phase"`
	CurrentQuestionIndex int          `json:"current_question_index"`
	CurrentQuestionID    *uuid.UUID   `json:"current_question_id,omitempty"`
	QuestionStartedAt    *time.Time   `json:"question_started_at,omitempty"`
	TimeLimitSec         int          `json:"time_limit_sec"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// TimeLimit returns the per-question answer window as a duration.
func (s *Session) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitSec) * time.Second
}

// QuestionDeadline returns the moment the current question stops accepting
// answers, or false when no question has been activated.
func (s *Session) QuestionDeadline() (time.Time, bool) {
	if s.QuestionStartedAt == nil {
		return time.Time{}, false
	}
	return s.QuestionStartedAt.Add(s.TimeLimit()), true
}
