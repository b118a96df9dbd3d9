package question

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/david2928/wedding-sub000/internal/models"
)

// QuestionRepository defines what the question app layer needs from the
// question repository
type QuestionRepository interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	GetQuestionByIndex(ctx context.Context, questionSetID uuid.UUID, index int) (*models.Question, error)
	ListQuestions(ctx context.Context, questionSetID uuid.UUID) ([]models.Question, error)
	CountQuestions(ctx context.Context, questionSetID uuid.UUID) (int, error)
	CreateQuestion(ctx context.Context, q *models.Question) error
}

// App handles question business logic
type App struct {
	repo QuestionRepository
}

func NewApp(repo QuestionRepository) *App {
	return &App{repo: repo}
}

// GetQuestion retrieves a question by ID
func (a *App) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return a.repo.GetQuestion(ctx, id)
}

// GetQuestionByIndex retrieves the question at a zero-based position within
// a question set
func (a *App) GetQuestionByIndex(ctx context.Context, questionSetID uuid.UUID, index int) (*models.Question, error) {
	if index < 0 {
		return nil, fmt.Errorf("question index cannot be negative")
	}
	return a.repo.GetQuestionByIndex(ctx, questionSetID, index)
}

// ListQuestions retrieves all questions in a set in display order
func (a *App) ListQuestions(ctx context.Context, questionSetID uuid.UUID) ([]models.Question, error) {
	return a.repo.ListQuestions(ctx, questionSetID)
}

// CountQuestions returns the number of questions in a set
func (a *App) CountQuestions(ctx context.Context, questionSetID uuid.UUID) (int, error) {
	return a.repo.CountQuestions(ctx, questionSetID)
}

// CreateQuestion stores a new question after validating its options
func (a *App) CreateQuestion(ctx context.Context, q *models.Question) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("a question needs at least 2 options, got %d", len(q.Options))
	}
	if !q.CorrectOption.Valid() {
		return fmt.Errorf("invalid correct option: %s", q.CorrectOption)
	}

	seen := make(map[models.OptionLabel]bool, len(q.Options))
	for _, opt := range q.Options {
		if !opt.Label.Valid() {
			return fmt.Errorf("invalid option label: %s", opt.Label)
		}
		if seen[opt.Label] {
			return fmt.Errorf("duplicate option label: %s", opt.Label)
		}
		seen[opt.Label] = true
	}
	if !seen[q.CorrectOption] {
		return fmt.Errorf("correct option %s is not among the options", q.CorrectOption)
	}

	return a.repo.CreateQuestion(ctx, q)
}
