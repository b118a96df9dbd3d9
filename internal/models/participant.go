package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a guest party's standing within one session. Created on
// first join and never deleted during a session; the score fields are
// mutated only through the atomic increment path.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	PartyID      uuid.UUID `json:"party_id"`
	DisplayName  string    `json:"display_name"`
	TotalScore   int       `json:"total_score"`
	CorrectCount int       `json:"correct_count"`
	HasBonus     bool      `json:"has_bonus"`
	JoinedAt     time.Time `json:"joined_at"`
}
