package question

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david2928/wedding-sub000/internal/models"
)

type fakeQuestionRepo struct {
	created []*models.Question
}

func (f *fakeQuestionRepo) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	for _, q := range f.created {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeQuestionRepo) GetQuestionByIndex(ctx context.Context, questionSetID uuid.UUID, index int) (*models.Question, error) {
	for _, q := range f.created {
		if q.QuestionSetID == questionSetID && q.DisplayOrder == index {
			return q, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeQuestionRepo) ListQuestions(ctx context.Context, questionSetID uuid.UUID) ([]models.Question, error) {
	var out []models.Question
	for _, q := range f.created {
		if q.QuestionSetID == questionSetID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeQuestionRepo) CountQuestions(ctx context.Context, questionSetID uuid.UUID) (int, error) {
	qs, _ := f.ListQuestions(ctx, questionSetID)
	return len(qs), nil
}

func (f *fakeQuestionRepo) CreateQuestion(ctx context.Context, q *models.Question) error {
	f.created = append(f.created, q)
	return nil
}

func validQuestion() *models.Question {
	return &models.Question{
		QuestionSetID: uuid.New(),
		Prompt:        "Where was the honeymoon booked?",
		Options: []models.QuestionOption{
			{Label: models.OptionA, Text: "Bali"},
			{Label: models.OptionB, Text: "Patagonia"},
			{Label: models.OptionC, Text: "Scotland"},
			{Label: models.OptionD, Text: "New Zealand"},
		},
		CorrectOption: models.OptionD,
	}
}

func TestCreateQuestion_AssignsID(t *testing.T) {
	repo := &fakeQuestionRepo{}
	app := NewApp(repo)

	q := validQuestion()
	require.NoError(t, app.CreateQuestion(context.Background(), q))
	assert.NotEqual(t, uuid.Nil, q.ID)
	assert.Len(t, repo.created, 1)
}

func TestCreateQuestion_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *models.Question)
	}{
		{"empty prompt", func(q *models.Question) { q.Prompt = "" }},
		{"too few options", func(q *models.Question) { q.Options = q.Options[:1] }},
		{"invalid correct option", func(q *models.Question) { q.CorrectOption = "E" }},
		{"duplicate labels", func(q *models.Question) { q.Options[1].Label = models.OptionA }},
		{"correct option missing", func(q *models.Question) { q.Options = q.Options[:3] }}, // correct is D
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeQuestionRepo{}
			app := NewApp(repo)

			q := validQuestion()
			tt.mutate(q)
			assert.Error(t, app.CreateQuestion(context.Background(), q))
			assert.Empty(t, repo.created)
		})
	}
}

func TestGetQuestionByIndex_RejectsNegativeIndex(t *testing.T) {
	app := NewApp(&fakeQuestionRepo{})

	_, err := app.GetQuestionByIndex(context.Background(), uuid.New(), -1)
	assert.Error(t, err)
}
