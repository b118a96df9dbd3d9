package answer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
	"github.com/david2928/wedding-sub000/internal/scoring"
)

// fakeAnswerRepo mirrors the real repository's transactional contract:
// RecordAnswer either stores the row and applies the score credit
// together, or leaves both untouched.
type fakeAnswerRepo struct {
	rows         map[string]*models.Answer
	participants map[uuid.UUID]*models.Participant
	credits      int
	failCredit   bool
}

func newFakeAnswerRepo(participants map[uuid.UUID]*models.Participant) *fakeAnswerRepo {
	return &fakeAnswerRepo{
		rows:         make(map[string]*models.Answer),
		participants: participants,
	}
}

func answerKey(sessionID, questionID, partyID uuid.UUID) string {
	return sessionID.String() + "/" + questionID.String() + "/" + partyID.String()
}

func (f *fakeAnswerRepo) RecordAnswer(ctx context.Context, a *models.Answer) (bool, error) {
	k := answerKey(a.SessionID, a.QuestionID, a.PartyID)
	if _, ok := f.rows[k]; ok {
		return false, nil
	}
	if a.IsCorrect {
		if f.failCredit {
			return false, errors.New("failed to credit score")
		}
		p, ok := f.participants[a.PartyID]
		if !ok {
			return false, errors.New("participant not found")
		}
		p.TotalScore += a.PointsEarned
		p.CorrectCount++
		f.credits++
	}
	cp := *a
	f.rows[k] = &cp
	return true, nil
}

func (f *fakeAnswerRepo) GetAnswer(ctx context.Context, sessionID, questionID, partyID uuid.UUID) (*models.Answer, error) {
	a, ok := f.rows[answerKey(sessionID, questionID, partyID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAnswerRepo) ListAnswers(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.Answer, error) {
	var out []models.Answer
	for _, a := range f.rows {
		if a.SessionID == sessionID && a.QuestionID == questionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAnswerRepo) ListAnswersByParty(ctx context.Context, sessionID, partyID uuid.UUID) ([]models.Answer, error) {
	var out []models.Answer
	for _, a := range f.rows {
		if a.SessionID == sessionID && a.PartyID == partyID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAnswerRepo) CountAnswers(ctx context.Context, sessionID, questionID uuid.UUID) (int, error) {
	n := 0
	for _, a := range f.rows {
		if a.SessionID == sessionID && a.QuestionID == questionID {
			n++
		}
	}
	return n, nil
}

type fakeSessionSource struct {
	session *models.Session
}

func (f *fakeSessionSource) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	cp := *f.session
	return &cp, nil
}

type fakeQuestionSource struct {
	question *models.Question
}

func (f *fakeQuestionSource) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	cp := *f.question
	return &cp, nil
}

type fakeParticipantSource struct {
	participants map[uuid.UUID]*models.Participant
}

func (f *fakeParticipantSource) GetParticipant(ctx context.Context, sessionID, partyID uuid.UUID) (*models.Participant, error) {
	p, ok := f.participants[partyID]
	if !ok {
		return nil, ErrNotParticipant
	}
	return p, nil
}

func (f *fakeParticipantSource) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return len(f.participants), nil
}

type capturingPublisher struct {
	events []*events.QuizEvent
}

func (c *capturingPublisher) Publish(ctx context.Context, event *events.QuizEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *capturingPublisher) Close() error { return nil }

type fixture struct {
	app          *App
	repo         *fakeAnswerRepo
	participants map[uuid.UUID]*models.Participant
	publisher    *capturingPublisher
	clock        *clockwork.FakeClock
	session      *models.Session
	question     *models.Question
	partyID      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	startedAt := clock.Now().UTC()

	questionID := uuid.New()
	session := &models.Session{
		ID:                uuid.New(),
		QuestionSetID:     uuid.New(),
		Phase:             models.PhaseActive,
		CurrentQuestionID: &questionID,
		QuestionStartedAt: &startedAt,
		TimeLimitSec:      30,
	}

	question := &models.Question{
		ID:            questionID,
		QuestionSetID: session.QuestionSetID,
		Prompt:        "Where did the couple first meet?",
		Options: []models.QuestionOption{
			{Label: models.OptionA, Text: "At a wedding"},
			{Label: models.OptionB, Text: "At work"},
			{Label: models.OptionC, Text: "On a hike"},
			{Label: models.OptionD, Text: "Online"},
		},
		CorrectOption: models.OptionC,
	}

	partyID := uuid.New()
	participants := map[uuid.UUID]*models.Participant{
		partyID: {ID: uuid.New(), SessionID: session.ID, PartyID: partyID, DisplayName: "Table One"},
	}

	repo := newFakeAnswerRepo(participants)
	publisher := &capturingPublisher{}

	return &fixture{
		app:          NewApp(repo, &fakeSessionSource{session: session}, &fakeQuestionSource{question: question}, &fakeParticipantSource{participants: participants}, publisher, clock),
		repo:         repo,
		participants: participants,
		publisher:    publisher,
		clock:        clock,
		session:      session,
		question:     question,
		partyID:      partyID,
	}
}

func (fx *fixture) submit(opt models.OptionLabel) (*models.Answer, error) {
	return fx.app.Submit(context.Background(), SubmitRequest{
		SessionID:    fx.session.ID,
		QuestionID:   fx.question.ID,
		PartyID:      fx.partyID,
		ChosenOption: opt,
	})
}

func TestSubmit_CorrectAnswerScoresAndIncrements(t *testing.T) {
	fx := newFixture(t)
	fx.clock.Advance(10 * time.Second)

	ans, err := fx.submit(models.OptionC)

	require.NoError(t, err)
	assert.True(t, ans.IsCorrect)
	assert.Equal(t, int64(10000), ans.TimeTakenMs)
	assert.Equal(t, scoring.Points(true, 10*time.Second, 30*time.Second), ans.PointsEarned)
	assert.Equal(t, 1, fx.repo.credits)
	assert.Equal(t, ans.PointsEarned, fx.participants[fx.partyID].TotalScore)
	assert.Equal(t, 1, fx.participants[fx.partyID].CorrectCount)
}

func TestSubmit_WrongAnswerEarnsNothing(t *testing.T) {
	fx := newFixture(t)
	fx.clock.Advance(5 * time.Second)

	ans, err := fx.submit(models.OptionA)

	require.NoError(t, err)
	assert.False(t, ans.IsCorrect)
	assert.Equal(t, 0, ans.PointsEarned)
	assert.Equal(t, 0, fx.repo.credits, "wrong answers never touch the score")
	assert.Equal(t, 0, fx.participants[fx.partyID].TotalScore)
}

func TestSubmit_DuplicateKeepsFirstAnswer(t *testing.T) {
	fx := newFixture(t)
	fx.clock.Advance(3 * time.Second)

	first, err := fx.submit(models.OptionC)
	require.NoError(t, err)

	fx.clock.Advance(2 * time.Second)

	second, err := fx.submit(models.OptionA)
	require.ErrorIs(t, err, ErrAlreadyAnswered)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.OptionC, second.ChosenOption)

	assert.Equal(t, 1, fx.repo.credits, "duplicate must not double-apply the score")
	assert.Equal(t, first.PointsEarned, fx.participants[fx.partyID].TotalScore)
}

func TestSubmit_RejectedWhenQuestionNotActive(t *testing.T) {
	fx := newFixture(t)
	fx.session.Phase = models.PhaseShowingAnswer

	_, err := fx.submit(models.OptionC)
	assert.ErrorIs(t, err, ErrQuestionClosed)
}

func TestSubmit_RejectedForStaleQuestion(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.app.Submit(context.Background(), SubmitRequest{
		SessionID:    fx.session.ID,
		QuestionID:   uuid.New(), // not the active question
		PartyID:      fx.partyID,
		ChosenOption: models.OptionC,
	})
	assert.ErrorIs(t, err, ErrQuestionClosed)
}

func TestSubmit_RejectedForNonParticipant(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.app.Submit(context.Background(), SubmitRequest{
		SessionID:    fx.session.ID,
		QuestionID:   fx.question.ID,
		PartyID:      uuid.New(),
		ChosenOption: models.OptionC,
	})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSubmit_GraceWindowClampsTimeTaken(t *testing.T) {
	fx := newFixture(t)
	// Past the 30s limit but still ACTIVE (reveal buffer not elapsed).
	fx.clock.Advance(31 * time.Second)

	ans, err := fx.submit(models.OptionC)

	require.NoError(t, err)
	assert.Equal(t, int64(30000), ans.TimeTakenMs)
	assert.Equal(t, scoring.MinCorrectPoints(), ans.PointsEarned)
}

func TestSubmit_FailedScoreCreditStoresNoAnswer(t *testing.T) {
	fx := newFixture(t)
	fx.clock.Advance(4 * time.Second)
	fx.repo.failCredit = true

	_, err := fx.submit(models.OptionC)
	require.Error(t, err)

	// The write is all-or-nothing: no orphan answer row, no score change.
	_, err = fx.app.GetAnswer(context.Background(), fx.session.ID, fx.question.ID, fx.partyID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, fx.participants[fx.partyID].TotalScore)

	// Once the fault clears a retry lands both the answer and exactly one
	// score credit.
	fx.repo.failCredit = false
	ans, err := fx.submit(models.OptionC)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.repo.credits)
	assert.Equal(t, ans.PointsEarned, fx.participants[fx.partyID].TotalScore)
}

func TestSubmit_PublishesAnswerCount(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.submit(models.OptionB)
	require.NoError(t, err)

	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, events.EventTypeAnswerCountUpdated, fx.publisher.events[0].Type)
}

func TestAllAnswered(t *testing.T) {
	fx := newFixture(t)

	done, err := fx.app.AllAnswered(context.Background(), fx.session.ID, fx.question.ID)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = fx.submit(models.OptionC)
	require.NoError(t, err)

	done, err = fx.app.AllAnswered(context.Background(), fx.session.ID, fx.question.ID)
	require.NoError(t, err)
	assert.True(t, done, "single participant answering closes the question")
}

func TestStatsForQuestion(t *testing.T) {
	fx := newFixture(t)

	// Add a second participant and collect one right and one wrong answer.
	otherParty := uuid.New()
	fx.participants[otherParty] = &models.Participant{
		ID: uuid.New(), SessionID: fx.session.ID, PartyID: otherParty, DisplayName: "Table Two",
	}

	_, err := fx.submit(models.OptionC)
	require.NoError(t, err)

	_, err = fx.app.Submit(context.Background(), SubmitRequest{
		SessionID:    fx.session.ID,
		QuestionID:   fx.question.ID,
		PartyID:      otherParty,
		ChosenOption: models.OptionA,
	})
	require.NoError(t, err)

	stats, err := fx.app.StatsForQuestion(context.Background(), fx.session.ID, fx.question.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAnswers)
	assert.Equal(t, 1, stats.CorrectAnswers)
	assert.Equal(t, 1, stats.OptionCounts[models.OptionC])
	assert.Equal(t, 1, stats.OptionCounts[models.OptionA])
}
