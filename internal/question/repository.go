package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david2928/wedding-sub000/internal/models"
)

// ErrNotFound is returned when no question matches the lookup.
var ErrNotFound = errors.New("question not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const questionColumns = `id, question_set_id, prompt, options, correct_option, display_order, image_url`

func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM quiz_questions WHERE id = $1`

	q, err := scanQuestion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

func (r *Repository) GetQuestionByIndex(ctx context.Context, questionSetID uuid.UUID, index int) (*models.Question, error) {
	query := `SELECT ` + questionColumns + `
		FROM quiz_questions
		WHERE question_set_id = $1 AND display_order = $2`

	q, err := scanQuestion(r.pool.QueryRow(ctx, query, questionSetID, index))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get question by index: %w", err)
	}
	return q, nil
}

func (r *Repository) ListQuestions(ctx context.Context, questionSetID uuid.UUID) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + `
		FROM quiz_questions
		WHERE question_set_id = $1
		ORDER BY display_order`

	rows, err := r.pool.Query(ctx, query, questionSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}

	return questions, nil
}

func (r *Repository) CountQuestions(ctx context.Context, questionSetID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM quiz_questions WHERE question_set_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, questionSetID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

func (r *Repository) CreateQuestion(ctx context.Context, q *models.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	query := `
		INSERT INTO quiz_questions (id, question_set_id, prompt, options, correct_option, display_order, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.pool.Exec(ctx, query,
		q.ID, q.QuestionSetID, q.Prompt, options, string(q.CorrectOption), q.DisplayOrder, q.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var (
		q             models.Question
		options       []byte
		correctOption string
	)
	if err := row.Scan(&q.ID, &q.QuestionSetID, &q.Prompt, &options, &correctOption, &q.DisplayOrder, &q.ImageURL); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	q.CorrectOption = models.OptionLabel(correctOption)
	return &q, nil
}
