package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/broadcast"
	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
	"github.com/david2928/wedding-sub000/internal/scoring"
)

var (
	// ErrQuestionClosed is returned when the target question is not the
	// session's currently active question.
	ErrQuestionClosed = errors.New("question is not accepting answers")

	// ErrAlreadyAnswered is returned on a duplicate submission. The first
	// stored answer is returned alongside it and remains authoritative.
	ErrAlreadyAnswered = errors.New("party already answered this question")

	// ErrNotParticipant is returned when the submitting party never joined
	// the session.
	ErrNotParticipant = errors.New("party has not joined this session")
)

// AnswerRepository defines what the answer app layer needs from the answer
// repository. RecordAnswer is the only score-mutating write: it stores the
// answer and credits the participant in one transaction.
type AnswerRepository interface {
	RecordAnswer(ctx context.Context, a *models.Answer) (bool, error)
	GetAnswer(ctx context.Context, sessionID, questionID, partyID uuid.UUID) (*models.Answer, error)
	ListAnswers(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.Answer, error)
	ListAnswersByParty(ctx context.Context, sessionID, partyID uuid.UUID) ([]models.Answer, error)
	CountAnswers(ctx context.Context, sessionID, questionID uuid.UUID) (int, error)
}

// SessionSource provides the current session state for submission checks.
type SessionSource interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// QuestionSource provides question lookups for grading.
type QuestionSource interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
}

// ParticipantSource provides participant lookups for submission checks.
type ParticipantSource interface {
	GetParticipant(ctx context.Context, sessionID, partyID uuid.UUID) (*models.Participant, error)
	CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// SubmitRequest carries one party's answer to the active question.
type SubmitRequest struct {
	SessionID    uuid.UUID
	QuestionID   uuid.UUID
	PartyID      uuid.UUID
	ChosenOption models.OptionLabel
}

// App handles answer business logic
type App struct {
	repo         AnswerRepository
	sessions     SessionSource
	questions    QuestionSource
	participants ParticipantSource
	publisher    broadcast.Publisher
	clock        clockwork.Clock
}

func NewApp(repo AnswerRepository, sessions SessionSource, questions QuestionSource, participants ParticipantSource, publisher broadcast.Publisher, clock clockwork.Clock) *App {
	return &App{
		repo:         repo,
		sessions:     sessions,
		questions:    questions,
		participants: participants,
		publisher:    publisher,
		clock:        clock,
	}
}

// Submit grades and records an answer. Correctness and elapsed time are
// derived entirely server-side from the stored question and the session's
// question_started_at, so a tampered client cannot influence its score.
// The insert is at-most-once per (session, question, party).
func (a *App) Submit(ctx context.Context, req SubmitRequest) (*models.Answer, error) {
	if err := a.validateSubmitRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := a.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	if session.Phase != models.PhaseActive ||
		session.CurrentQuestionID == nil ||
		*session.CurrentQuestionID != req.QuestionID ||
		session.QuestionStartedAt == nil {
		return nil, ErrQuestionClosed
	}

	if _, err := a.participants.GetParticipant(ctx, req.SessionID, req.PartyID); err != nil {
		return nil, ErrNotParticipant
	}

	question, err := a.questions.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("question not found: %w", err)
	}
	if _, ok := question.OptionText(req.ChosenOption); !ok {
		return nil, fmt.Errorf("option %s does not exist on this question", req.ChosenOption)
	}

	limit := session.TimeLimit()
	taken := a.clock.Now().UTC().Sub(*session.QuestionStartedAt)
	if taken < 0 {
		taken = 0
	}
	if taken > limit {
		// Submissions landing in the grace window before auto-reveal are
		// accepted at the minimum speed bonus.
		taken = limit
	}

	isCorrect := req.ChosenOption == question.CorrectOption

	ans := &models.Answer{
		ID:           uuid.New(),
		SessionID:    req.SessionID,
		QuestionID:   req.QuestionID,
		PartyID:      req.PartyID,
		ChosenOption: req.ChosenOption,
		IsCorrect:    isCorrect,
		TimeTakenMs:  taken.Milliseconds(),
		PointsEarned: scoring.Points(isCorrect, taken, limit),
		CreatedAt:    a.clock.Now().UTC(),
	}

	// RecordAnswer stores the row and credits the score in one transaction,
	// so the increment happens at most once per question per party and the
	// participant total can never drift from the stored answers.
	inserted, err := a.repo.RecordAnswer(ctx, ans)
	if err != nil {
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}
	if !inserted {
		existing, err := a.repo.GetAnswer(ctx, req.SessionID, req.QuestionID, req.PartyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing answer: %w", err)
		}
		return existing, ErrAlreadyAnswered
	}

	a.publishAnswerCount(ctx, req.SessionID, req.QuestionID)

	return ans, nil
}

// GetAnswer retrieves one party's answer to a question
func (a *App) GetAnswer(ctx context.Context, sessionID, questionID, partyID uuid.UUID) (*models.Answer, error) {
	return a.repo.GetAnswer(ctx, sessionID, questionID, partyID)
}

// ListAnswersByParty retrieves every answer a party gave in a session
func (a *App) ListAnswersByParty(ctx context.Context, sessionID, partyID uuid.UUID) ([]models.Answer, error) {
	return a.repo.ListAnswersByParty(ctx, sessionID, partyID)
}

// CountAnswers returns how many answers the question has received
func (a *App) CountAnswers(ctx context.Context, sessionID, questionID uuid.UUID) (int, error) {
	return a.repo.CountAnswers(ctx, sessionID, questionID)
}

// StatsForQuestion aggregates the recorded answers of one question
func (a *App) StatsForQuestion(ctx context.Context, sessionID, questionID uuid.UUID) (*models.AnswerStats, error) {
	answers, err := a.repo.ListAnswers(ctx, sessionID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers for stats: %w", err)
	}
	return models.ComputeAnswerStats(answers), nil
}

// AllAnswered reports whether every joined participant has answered the
// question.
func (a *App) AllAnswered(ctx context.Context, sessionID, questionID uuid.UUID) (bool, error) {
	participants, err := a.participants.CountParticipants(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to count participants: %w", err)
	}
	if participants == 0 {
		return false, nil
	}
	answers, err := a.repo.CountAnswers(ctx, sessionID, questionID)
	if err != nil {
		return false, fmt.Errorf("failed to count answers: %w", err)
	}
	return answers >= participants, nil
}

func (a *App) publishAnswerCount(ctx context.Context, sessionID, questionID uuid.UUID) {
	answerCount, err := a.repo.CountAnswers(ctx, sessionID, questionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to count answers for broadcast")
		return
	}
	participantCount, err := a.participants.CountParticipants(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to count participants for broadcast")
		return
	}

	event, err := events.NewQuizEvent(sessionID, events.EventTypeAnswerCountUpdated, events.AnswerCountUpdatedPayload{
		SessionID:        sessionID.String(),
		QuestionID:       questionID.String(),
		AnswerCount:      answerCount,
		ParticipantCount: participantCount,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build AnswerCountUpdated event")
		return
	}

	if err := a.publisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("session_id", sessionID.String()).
			Msg("failed to publish AnswerCountUpdated event")
	}
}

func (a *App) validateSubmitRequest(req SubmitRequest) error {
	if req.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	if req.QuestionID == uuid.Nil {
		return fmt.Errorf("question_id is required")
	}
	if req.PartyID == uuid.Nil {
		return fmt.Errorf("party_id is required")
	}
	if !req.ChosenOption.Valid() {
		return fmt.Errorf("invalid option: %s", req.ChosenOption)
	}
	return nil
}
