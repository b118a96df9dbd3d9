package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david2928/wedding-sub000/internal/models"
)

// ErrNotFound is returned when no answer matches the lookup.
var ErrNotFound = errors.New("answer not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const answerColumns = `id, session_id, question_id, party_id, chosen_option, is_correct, time_taken_ms, points_earned, created_at`

// RecordAnswer writes an answer and, for a first-time correct answer,
// credits the participant's score and correct count. Both writes happen
// in one transaction: an answer row can never exist whose points were not
// applied to total_score. The unique constraint on (session_id,
// question_id, party_id) makes the insert at-most-once; on conflict
// nothing is written and the method reports false.
func (r *Repository) RecordAnswer(ctx context.Context, a *models.Answer) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO quiz_answers (id, session_id, question_id, party_id, chosen_option, is_correct, time_taken_ms, points_earned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, question_id, party_id) DO NOTHING`

	tag, err := tx.Exec(ctx, insert,
		a.ID, a.SessionID, a.QuestionID, a.PartyID, string(a.ChosenOption), a.IsCorrect, a.TimeTakenMs, a.PointsEarned, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if a.IsCorrect {
		credit := `
			UPDATE quiz_participants
			SET total_score = total_score + $3,
			    correct_count = correct_count + 1
			WHERE session_id = $1 AND party_id = $2`

		creditTag, err := tx.Exec(ctx, credit, a.SessionID, a.PartyID, a.PointsEarned)
		if err != nil {
			return false, fmt.Errorf("failed to credit score: %w", err)
		}
		if creditTag.RowsAffected() == 0 {
			return false, fmt.Errorf("participant %s not found in session %s", a.PartyID, a.SessionID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit answer: %w", err)
	}
	return true, nil
}

func (r *Repository) GetAnswer(ctx context.Context, sessionID, questionID, partyID uuid.UUID) (*models.Answer, error) {
	query := `SELECT ` + answerColumns + `
		FROM quiz_answers
		WHERE session_id = $1 AND question_id = $2 AND party_id = $3`

	a, err := scanAnswer(r.pool.QueryRow(ctx, query, sessionID, questionID, partyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAnswers(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.Answer, error) {
	query := `SELECT ` + answerColumns + `
		FROM quiz_answers
		WHERE session_id = $1 AND question_id = $2
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, sessionID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}

	return answers, nil
}

// ListAnswersByParty returns every answer a party has given in a session,
// in question order of submission.
func (r *Repository) ListAnswersByParty(ctx context.Context, sessionID, partyID uuid.UUID) ([]models.Answer, error) {
	query := `SELECT ` + answerColumns + `
		FROM quiz_answers
		WHERE session_id = $1 AND party_id = $2
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, sessionID, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers by party: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}

	return answers, nil
}

func (r *Repository) CountAnswers(ctx context.Context, sessionID, questionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM quiz_answers WHERE session_id = $1 AND question_id = $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, sessionID, questionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count answers: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnswer(row rowScanner) (*models.Answer, error) {
	var (
		a      models.Answer
		chosen string
	)
	if err := row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.PartyID, &chosen, &a.IsCorrect, &a.TimeTakenMs, &a.PointsEarned, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ChosenOption = models.OptionLabel(chosen)
	return &a, nil
}
