package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types and payloads shared between the session, answer, reveal and
// gateway packages. They live here to avoid cyclic imports.

// QuizEvent is the envelope every broadcast frame uses on the wire.
type QuizEvent struct {
	ID        string          `json:"id"`         // Event UUID
	SessionID string          `json:"session_id"` // Quiz session UUID
	Type      EventType       `json:"type"`       // Event type
	Timestamp time.Time       `json:"timestamp"`  // Event creation time
	Data      json.RawMessage `json:"data"`       // Event-specific payload
}

// EventType represents the type of quiz event
type EventType string

const (
	EventTypeSessionStarted     EventType = "SessionStarted"
	EventTypeParticipantJoined  EventType = "ParticipantJoined"
	EventTypeQuestionActivated  EventType = "QuestionActivated"
	EventTypeAnswerCountUpdated EventType = "AnswerCountUpdated"
	EventTypeAnswerRevealed     EventType = "AnswerRevealed"
	EventTypeLeaderboardShown   EventType = "LeaderboardShown"
	EventTypeSessionEnded       EventType = "SessionEnded"
)

// NewQuizEvent wraps a payload in an envelope. The payload must be
// JSON-marshalable.
func NewQuizEvent(sessionID uuid.UUID, eventType EventType, payload interface{}) (*QuizEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &QuizEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// SessionStartedPayload is the payload for a SessionStarted event
type SessionStartedPayload struct {
	SessionID     string    `json:"session_id"`
	QuestionSetID string    `json:"question_set_id"`
	StartedAt     time.Time `json:"started_at"`
	QuestionCount int       `json:"question_count"`
}

// ParticipantJoinedPayload is the payload for a ParticipantJoined event
type ParticipantJoinedPayload struct {
	SessionID        string    `json:"session_id"`
	PartyID          string    `json:"party_id"`
	DisplayName      string    `json:"display_name"`
	JoinedAt         time.Time `json:"joined_at"`
	ParticipantCount int       `json:"participant_count"`
}

// QuestionActivatedPayload is the payload for a QuestionActivated event.
// It never carries the correct option.
type QuestionActivatedPayload struct {
	SessionID     string       `json:"session_id"`
	QuestionID    string       `json:"question_id"`
	QuestionIndex int          `json:"question_index"`
	Prompt        string       `json:"prompt"`
	Options       []OptionView `json:"options"`
	ImageURL      *string      `json:"image_url,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	Deadline      time.Time    `json:"deadline"`
	TimeLimitSec  int          `json:"time_limit_sec"`
}

// OptionView is one answer choice as shown to players.
type OptionView struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// AnswerCountUpdatedPayload is the payload for an AnswerCountUpdated event
type AnswerCountUpdatedPayload struct {
	SessionID        string `json:"session_id"`
	QuestionID       string `json:"question_id"`
	AnswerCount      int    `json:"answer_count"`
	ParticipantCount int    `json:"participant_count"`
}

// AnswerRevealedPayload is the payload for an AnswerRevealed event
type AnswerRevealedPayload struct {
	SessionID      string         `json:"session_id"`
	QuestionID     string         `json:"question_id"`
	CorrectOption  string         `json:"correct_option"`
	RevealedAt     time.Time      `json:"revealed_at"`
	TotalAnswers   int            `json:"total_answers"`
	CorrectAnswers int            `json:"correct_answers"`
	OptionCounts   map[string]int `json:"option_counts"`
}

// LeaderboardEntry is one ranked row in a LeaderboardShown event
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	PartyID      string `json:"party_id"`
	DisplayName  string `json:"display_name"`
	TotalScore   int    `json:"total_score"`
	CorrectCount int    `json:"correct_count"`
}

// LeaderboardShownPayload is the payload for a LeaderboardShown event
type LeaderboardShownPayload struct {
	SessionID string             `json:"session_id"`
	ShownAt   time.Time          `json:"shown_at"`
	Entries   []LeaderboardEntry `json:"entries"`
}

// SessionEndedPayload is the payload for a SessionEnded event
type SessionEndedPayload struct {
	SessionID string             `json:"session_id"`
	EndedAt   time.Time          `json:"ended_at"`
	Final     []LeaderboardEntry `json:"final_leaderboard"`
}
