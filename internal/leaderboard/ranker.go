package leaderboard

import (
	"sort"

	"github.com/david2928/wedding-sub000/internal/models"
)

// Entry is one ranked row of the leaderboard.
type Entry struct {
	Rank         int    `json:"rank"`
	PartyID      string `json:"party_id"`
	DisplayName  string `json:"display_name"`
	TotalScore   int    `json:"total_score"`
	CorrectCount int    `json:"correct_count"`
}

// Rank orders a session's participants into a total order: total score
// descending, then correct-answer count descending, then join order
// (earliest first). The ranking is recomputed from scratch on every call
// rather than patched incrementally, so a missed update can never skew it.
func Rank(participants []models.Participant) []Entry {
	ranked := make([]models.Participant, len(participants))
	copy(ranked, participants)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		if ranked[i].CorrectCount != ranked[j].CorrectCount {
			return ranked[i].CorrectCount > ranked[j].CorrectCount
		}
		if !ranked[i].JoinedAt.Equal(ranked[j].JoinedAt) {
			return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
		}
		// Identical join instants should not happen, but the order must
		// still be total.
		return ranked[i].PartyID.String() < ranked[j].PartyID.String()
	})

	entries := make([]Entry, len(ranked))
	for i, p := range ranked {
		entries[i] = Entry{
			Rank:         i + 1,
			PartyID:      p.PartyID.String(),
			DisplayName:  p.DisplayName,
			TotalScore:   p.TotalScore,
			CorrectCount: p.CorrectCount,
		}
	}

	return entries
}

// Top returns the first n entries of a ranking.
func Top(entries []Entry, n int) []Entry {
	if n >= len(entries) {
		return entries
	}
	return entries[:n]
}
