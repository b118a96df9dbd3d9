package models

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one participant's recorded response to one question. Unique
// per (session, question, party) and immutable once written.
type Answer struct {
	ID           uuid.UUID   `json:"id"`
	SessionID    uuid.UUID   `json:"session_id"`
	QuestionID   uuid.UUID   `json:"question_id"`
	PartyID      uuid.UUID   `json:"party_id"`
	ChosenOption OptionLabel `json:"chosen_option"`
	IsCorrect    bool        `json:"is_correct"`
	TimeTakenMs  int64       `json:"time_taken_ms"`
	PointsEarned int         `json:"points_earned"`
	CreatedAt    time.Time   `json:"created_at"`
}

// AnswerStats are per-question aggregates recomputed from the stored
// answers, never trusted from a cached broadcast payload.
type AnswerStats struct {
	TotalAnswers   int                 `json:"total_answers"`
	CorrectAnswers int                 `json:"correct_answers"`
	OptionCounts   map[OptionLabel]int `json:"option_counts"`
	MeanLatencyMs  int64               `json:"mean_latency_ms"`
}

// ComputeAnswerStats aggregates a question's answers.
func ComputeAnswerStats(answers []Answer) *AnswerStats {
	stats := &AnswerStats{
		TotalAnswers: len(answers),
		OptionCounts: make(map[OptionLabel]int),
	}

	var latencySum int64
	for _, a := range answers {
		stats.OptionCounts[a.ChosenOption]++
		if a.IsCorrect {
			stats.CorrectAnswers++
		}
		latencySum += a.TimeTakenMs
	}
	if len(answers) > 0 {
		stats.MeanLatencyMs = latencySum / int64(len(answers))
	}

	return stats
}
