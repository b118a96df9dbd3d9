package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/broadcast"
	"github.com/david2928/wedding-sub000/internal/leaderboard"
	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
)

// SessionRepository defines what the session app layer needs from the
// session repository
type SessionRepository interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetCurrentSession(ctx context.Context) (*models.Session, error)
	UpdatePhase(ctx context.Context, id uuid.UUID, from, to models.SessionPhase) (*models.Session, error)
	ActivateQuestion(ctx context.Context, id, questionID uuid.UUID, index int, startedAt time.Time) (*models.Session, error)
	FetchSessionsDueForReveal(ctx context.Context, cutoff time.Time, limit int32) ([]uuid.UUID, error)
	FetchNextRevealDeadline(ctx context.Context) (*RevealDeadline, error)
}

// QuestionSource provides question content for activations and reveals.
type QuestionSource interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	GetQuestionByIndex(ctx context.Context, questionSetID uuid.UUID, index int) (*models.Question, error)
	CountQuestions(ctx context.Context, questionSetID uuid.UUID) (int, error)
}

// ParticipantSource provides the session roster for rankings.
type ParticipantSource interface {
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// AnswerSource provides stored answers for reveal statistics.
type AnswerSource interface {
	ListAnswers(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.Answer, error)
}

// App drives the session state machine. Every transition persists first
// and broadcasts second: the store is authoritative, the broadcast is a
// latency optimization that clients can always survive missing.
type App struct {
	repo         SessionRepository
	questions    QuestionSource
	participants ParticipantSource
	answers      AnswerSource
	publisher    broadcast.Publisher
	clock        clockwork.Clock
}

func NewApp(repo SessionRepository, questions QuestionSource, participants ParticipantSource, answers AnswerSource, publisher broadcast.Publisher, clock clockwork.Clock) *App {
	return &App{
		repo:         repo,
		questions:    questions,
		participants: participants,
		answers:      answers,
		publisher:    publisher,
		clock:        clock,
	}
}

// CreateSession creates a new idle session over a question set
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if req.QuestionSetID == uuid.Nil {
		return nil, fmt.Errorf("question_set_id is required")
	}
	if req.TimeLimitSec <= 0 {
		return nil, fmt.Errorf("time_limit_sec must be greater than 0")
	}

	count, err := a.questions.CountQuestions(ctx, req.QuestionSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("question set %s has no questions", req.QuestionSetID)
	}

	now := a.clock.Now().UTC()
	session := &models.Session{
		ID:                   uuid.New(),
		QuestionSetID:        req.QuestionSetID,
		Phase:                models.PhaseIdle,
		CurrentQuestionIndex: -1,
		TimeLimitSec:         req.TimeLimitSec,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := a.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("question_set_id", req.QuestionSetID.String()).
		Int("questions", count).
		Msg("created quiz session")
	return session, nil
}

// GetSession retrieves a session by ID
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.repo.GetSession(ctx, id)
}

// GetCurrentSession retrieves the most recent non-terminal session
func (a *App) GetCurrentSession(ctx context.Context) (*models.Session, error) {
	return a.repo.GetCurrentSession(ctx)
}

// OpenLobby moves an idle session into WAITING so guests can join
func (a *App) OpenLobby(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	current, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validatePhaseTransition(current.Phase, models.PhaseWaiting); err != nil {
		return nil, err
	}

	session, err := a.repo.UpdatePhase(ctx, id, current.Phase, models.PhaseWaiting)
	if err != nil {
		return nil, err
	}

	count, err := a.questions.CountQuestions(ctx, session.QuestionSetID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to count questions for session-started event")
	}
	a.publish(ctx, session.ID, events.EventTypeSessionStarted, events.SessionStartedPayload{
		SessionID:     session.ID.String(),
		QuestionSetID: session.QuestionSetID.String(),
		StartedAt:     session.UpdatedAt,
		QuestionCount: count,
	})

	log.Info().Str("session_id", id.String()).Msg("lobby opened")
	return session, nil
}

// ActivateQuestion makes the question at the given index live. The index
// must move forward: reactivating the current or an earlier question is
// rejected, so question_started_at is stamped exactly once per question.
func (a *App) ActivateQuestion(ctx context.Context, id uuid.UUID, index int) (*models.Session, error) {
	current, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validatePhaseTransition(current.Phase, models.PhaseActive); err != nil {
		return nil, err
	}
	if index <= current.CurrentQuestionIndex {
		return nil, fmt.Errorf("cannot activate question %d: session already advanced to %d", index, current.CurrentQuestionIndex)
	}

	question, err := a.questions.GetQuestionByIndex(ctx, current.QuestionSetID, index)
	if err != nil {
		return nil, fmt.Errorf("failed to load question %d: %w", index, err)
	}

	startedAt := a.clock.Now().UTC()
	session, err := a.repo.ActivateQuestion(ctx, id, question.ID, index, startedAt)
	if err != nil {
		return nil, err
	}

	options := make([]events.OptionView, len(question.Options))
	for i, opt := range question.Options {
		options[i] = events.OptionView{Label: string(opt.Label), Text: opt.Text}
	}
	a.publish(ctx, session.ID, events.EventTypeQuestionActivated, events.QuestionActivatedPayload{
		SessionID:     session.ID.String(),
		QuestionID:    question.ID.String(),
		QuestionIndex: index,
		Prompt:        question.Prompt,
		Options:       options,
		ImageURL:      question.ImageURL,
		StartedAt:     startedAt,
		Deadline:      startedAt.Add(session.TimeLimit()),
		TimeLimitSec:  session.TimeLimitSec,
	})

	log.Info().
		Str("session_id", id.String()).
		Str("question_id", question.ID.String()).
		Int("index", index).
		Msg("question activated")
	return session, nil
}

// ActivateNext advances to the next question, or completes the session
// when the set is exhausted
func (a *App) ActivateNext(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	current, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.CurrentQuestionIndex + 1
	count, err := a.questions.CountQuestions(ctx, current.QuestionSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}
	if next >= count {
		return a.CompleteSession(ctx, id)
	}

	return a.ActivateQuestion(ctx, id, next)
}

// Reveal forces the active question into SHOWING_ANSWER and broadcasts the
// correct option with aggregate statistics. A concurrent reveal (manual
// racing auto) loses the compare-and-set and gets ErrPhaseConflict; the
// store holds exactly one transition either way.
func (a *App) Reveal(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	current, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Phase != models.PhaseActive {
		return nil, ErrPhaseConflict
	}
	if current.CurrentQuestionID == nil {
		return nil, fmt.Errorf("session %s is active without a current question", id)
	}
	questionID := *current.CurrentQuestionID

	session, err := a.repo.UpdatePhase(ctx, id, models.PhaseActive, models.PhaseShowingAnswer)
	if err != nil {
		return nil, err
	}

	question, err := a.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load revealed question: %w", err)
	}

	stats := &models.AnswerStats{OptionCounts: map[models.OptionLabel]int{}}
	answers, err := a.answers.ListAnswers(ctx, id, questionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to load answers for reveal stats")
	} else {
		stats = models.ComputeAnswerStats(answers)
	}

	optionCounts := make(map[string]int, len(stats.OptionCounts))
	for label, n := range stats.OptionCounts {
		optionCounts[string(label)] = n
	}
	a.publish(ctx, session.ID, events.EventTypeAnswerRevealed, events.AnswerRevealedPayload{
		SessionID:      session.ID.String(),
		QuestionID:     questionID.String(),
		CorrectOption:  string(question.CorrectOption),
		RevealedAt:     session.UpdatedAt,
		TotalAnswers:   stats.TotalAnswers,
		CorrectAnswers: stats.CorrectAnswers,
		OptionCounts:   optionCounts,
	})

	log.Info().
		Str("session_id", id.String()).
		Str("question_id", questionID.String()).
		Int("answers", stats.TotalAnswers).
		Msg("answer revealed")
	return session, nil
}

// ShowLeaderboard moves the session into the between-questions leaderboard
// display
func (a *App) ShowLeaderboard(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	current, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validatePhaseTransition(current.Phase, models.PhaseLeaderboard); err != nil {
		return nil, err
	}

	session, err := a.repo.UpdatePhase(ctx, id, current.Phase, models.PhaseLeaderboard)
	if err != nil {
		return nil, err
	}

	entries, err := a.Leaderboard(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to rank leaderboard for broadcast")
	}
	a.publish(ctx, session.ID, events.EventTypeLeaderboardShown, events.LeaderboardShownPayload{
		SessionID: session.ID.String(),
		ShownAt:   session.UpdatedAt,
		Entries:   toEventEntries(entries),
	})

	log.Info().Str("session_id", id.String()).Msg("leaderboard shown")
	return session, nil
}

// CompleteSession moves the session into its terminal phase and broadcasts
// the final rankings
func (a *App) CompleteSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	current, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validatePhaseTransition(current.Phase, models.PhaseCompleted); err != nil {
		return nil, err
	}

	session, err := a.repo.UpdatePhase(ctx, id, current.Phase, models.PhaseCompleted)
	if err != nil {
		return nil, err
	}

	entries, err := a.Leaderboard(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to rank final leaderboard")
	}
	a.publish(ctx, session.ID, events.EventTypeSessionEnded, events.SessionEndedPayload{
		SessionID: session.ID.String(),
		EndedAt:   session.UpdatedAt,
		Final:     toEventEntries(leaderboard.Top(entries, 10)),
	})

	log.Info().Str("session_id", id.String()).Msg("session completed")
	return session, nil
}

// Leaderboard recomputes the full ranking from stored participants
func (a *App) Leaderboard(ctx context.Context, id uuid.UUID) ([]leaderboard.Entry, error) {
	participants, err := a.participants.ListParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return leaderboard.Rank(participants), nil
}

// FetchSessionsDueForReveal retrieves active sessions whose question
// deadline has passed the cutoff
func (a *App) FetchSessionsDueForReveal(ctx context.Context, cutoff time.Time, limit int32) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}
	return a.repo.FetchSessionsDueForReveal(ctx, cutoff, limit)
}

// FetchNextRevealDeadline retrieves the earliest pending auto-reveal
// deadline
func (a *App) FetchNextRevealDeadline(ctx context.Context) (*RevealDeadline, error) {
	return a.repo.FetchNextRevealDeadline(ctx)
}

func (a *App) publish(ctx context.Context, sessionID uuid.UUID, eventType events.EventType, payload interface{}) {
	event, err := events.NewQuizEvent(sessionID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build quiz event")
		return
	}
	if err := a.publisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("event_type", string(eventType)).
			Str("session_id", sessionID.String()).
			Msg("failed to publish quiz event")
	}
}

func toEventEntries(entries []leaderboard.Entry) []events.LeaderboardEntry {
	out := make([]events.LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = events.LeaderboardEntry{
			Rank:         e.Rank,
			PartyID:      e.PartyID,
			DisplayName:  e.DisplayName,
			TotalScore:   e.TotalScore,
			CorrectCount: e.CorrectCount,
		}
	}
	return out
}

// validatePhaseTransition validates if a phase transition is allowed
func validatePhaseTransition(current, next models.SessionPhase) error {
	allowedTransitions := map[models.SessionPhase][]models.SessionPhase{
		models.PhaseIdle:          {models.PhaseWaiting, models.PhaseCompleted},
		models.PhaseWaiting:       {models.PhaseActive, models.PhaseCompleted},
		models.PhaseActive:        {models.PhaseShowingAnswer, models.PhaseCompleted},
		models.PhaseShowingAnswer: {models.PhaseActive, models.PhaseLeaderboard, models.PhaseCompleted},
		models.PhaseLeaderboard:   {models.PhaseActive, models.PhaseCompleted},
		models.PhaseCompleted:     {}, // Terminal
	}

	allowedNext, exists := allowedTransitions[current]
	if !exists {
		return fmt.Errorf("unknown current phase: %s", current)
	}

	for _, allowed := range allowedNext {
		if next == allowed {
			return nil
		}
	}

	return fmt.Errorf("transition from %s to %s is not allowed", current, next)
}
