package participant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david2928/wedding-sub000/internal/models"
)

// ErrNotFound is returned when no participant matches the lookup.
var ErrNotFound = errors.New("participant not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const participantColumns = `id, session_id, party_id, display_name, total_score, correct_count, has_bonus, joined_at`

// InsertParticipant inserts a participant row if the party has not joined
// this session yet. It reports whether a row was actually inserted; on
// conflict the existing row is left untouched.
func (r *Repository) InsertParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	query := `
		INSERT INTO quiz_participants (id, session_id, party_id, display_name, total_score, correct_count, has_bonus, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, party_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.SessionID, p.PartyID, p.DisplayName, p.TotalScore, p.CorrectCount, p.HasBonus, p.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert participant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) GetParticipant(ctx context.Context, sessionID, partyID uuid.UUID) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + `
		FROM quiz_participants
		WHERE session_id = $1 AND party_id = $2`

	var p models.Participant
	err := r.pool.QueryRow(ctx, query, sessionID, partyID).Scan(
		&p.ID, &p.SessionID, &p.PartyID, &p.DisplayName, &p.TotalScore, &p.CorrectCount, &p.HasBonus, &p.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

// ListParticipants returns a session's participants in join order.
func (r *Repository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + `
		FROM quiz_participants
		WHERE session_id = $1
		ORDER BY joined_at, party_id`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.PartyID, &p.DisplayName, &p.TotalScore, &p.CorrectCount, &p.HasBonus, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return participants, nil
}

func (r *Repository) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM quiz_participants WHERE session_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

