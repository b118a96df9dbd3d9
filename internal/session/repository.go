package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david2928/wedding-sub000/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, question_set_id, phase, current_question_index, current_question_id, question_started_at, time_limit_sec, created_at, updated_at`

// CreateSession inserts a new idle session. A partial unique index on
// non-terminal phases enforces the single-live-session rule at the store
// level, so a concurrent create surfaces as ErrSessionExists.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO quiz_sessions (id, question_set_id, phase, current_question_index, time_limit_sec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.QuestionSetID, string(s.Phase), s.CurrentQuestionIndex, s.TimeLimitSec, s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM quiz_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetCurrentSession returns the most recent non-terminal session.
func (r *Repository) GetCurrentSession(ctx context.Context) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM quiz_sessions
		WHERE phase <> 'COMPLETED'
		ORDER BY created_at DESC
		LIMIT 1`

	s, err := scanSession(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCurrentSession
		}
		return nil, fmt.Errorf("failed to get current session: %w", err)
	}
	return s, nil
}

// UpdatePhase moves a session from one phase to another in a single
// compare-and-set update. It fails with ErrPhaseConflict when the session
// is no longer in the expected phase.
func (r *Repository) UpdatePhase(ctx context.Context, id uuid.UUID, from, to models.SessionPhase) (*models.Session, error) {
	query := `
		UPDATE quiz_sessions
		SET phase = $3, updated_at = now()
		WHERE id = $1 AND phase = $2
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query, id, string(from), string(to)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPhaseConflict
		}
		return nil, fmt.Errorf("failed to update session phase: %w", err)
	}
	return s, nil
}

// ActivateQuestion atomically moves the session into ACTIVE with a new
// current question and a fresh question_started_at. The phase guard keeps
// a racing activation or a stale admin client from re-stamping
// question_started_at on an already-active question.
func (r *Repository) ActivateQuestion(ctx context.Context, id, questionID uuid.UUID, index int, startedAt time.Time) (*models.Session, error) {
	query := `
		UPDATE quiz_sessions
		SET phase = 'ACTIVE',
		    current_question_index = $3,
		    current_question_id = $4,
		    question_started_at = $5,
		    updated_at = now()
		WHERE id = $1 AND phase = ANY($2)
		RETURNING ` + sessionColumns

	activatable := []string{
		string(models.PhaseWaiting),
		string(models.PhaseShowingAnswer),
		string(models.PhaseLeaderboard),
	}

	s, err := scanSession(r.pool.QueryRow(ctx, query, id, activatable, index, questionID, startedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPhaseConflict
		}
		return nil, fmt.Errorf("failed to activate question: %w", err)
	}
	return s, nil
}

// FetchSessionsDueForReveal returns active sessions whose question deadline
// is at or before the cutoff. The caller bakes the reveal buffer into the
// cutoff it passes.
func (r *Repository) FetchSessionsDueForReveal(ctx context.Context, cutoff time.Time, limit int32) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM quiz_sessions
		WHERE phase = 'ACTIVE'
		  AND question_started_at IS NOT NULL
		  AND question_started_at + make_interval(secs => time_limit_sec) <= $1
		ORDER BY question_started_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions due for reveal: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due sessions: %w", err)
	}

	return ids, nil
}

// FetchNextRevealDeadline returns the earliest pending auto-reveal deadline
// across active sessions, or nil when no question is live.
func (r *Repository) FetchNextRevealDeadline(ctx context.Context) (*RevealDeadline, error) {
	query := `
		SELECT id, current_question_id, question_started_at + make_interval(secs => time_limit_sec)
		FROM quiz_sessions
		WHERE phase = 'ACTIVE' AND question_started_at IS NOT NULL AND current_question_id IS NOT NULL
		ORDER BY question_started_at + make_interval(secs => time_limit_sec)
		LIMIT 1`

	var d RevealDeadline
	err := r.pool.QueryRow(ctx, query).Scan(&d.SessionID, &d.QuestionID, &d.Deadline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch next reveal deadline: %w", err)
	}
	return &d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s     models.Session
		phase string
	)
	if err := row.Scan(&s.ID, &s.QuestionSetID, &phase, &s.CurrentQuestionIndex, &s.CurrentQuestionID, &s.QuestionStartedAt, &s.TimeLimitSec, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Phase = models.SessionPhase(phase)
	return &s, nil
}
