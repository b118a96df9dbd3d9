package reveal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
	"github.com/david2928/wedding-sub000/internal/session"
)

// RevealBuffer absorbs clock and network skew between the admin process
// and slow clients: auto-reveal fires this long after the nominal
// question deadline.
const RevealBuffer = 2 * time.Second

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// SessionControl defines what the orchestrator needs from the session app
type SessionControl interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Reveal(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FetchSessionsDueForReveal(ctx context.Context, cutoff time.Time, limit int32) ([]uuid.UUID, error)
	FetchNextRevealDeadline(ctx context.Context) (*session.RevealDeadline, error)
}

// AnswerCounter reports whether every participant has answered a question.
type AnswerCounter interface {
	AllAnswered(ctx context.Context, sessionID, questionID uuid.UUID) (bool, error)
}

// Orchestrator owns the auto-reveal schedule. The durable schedule is
// question_started_at + time_limit_sec in the store; the timers here are
// only a local re-arming of it and are rebuilt from the store on startup.
// A reveal is applied through the session app's compare-and-set, so a
// duplicate firing (timer racing the poll loop, or racing a manual
// reveal) can never produce a second transition.
type Orchestrator struct {
	sessions   SessionControl
	answers    AnswerCounter
	batchSize  int32
	buffer     time.Duration
	clock      Clock
	wakeCh     chan struct{}
	instanceID string

	// Worker pool configuration
	numWorkers int
	workCh     chan uuid.UUID

	// Track in-flight work to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex

	// One live timer per session at most
	activeTimers   map[uuid.UUID]clockwork.Timer
	activeTimersMu sync.Mutex

	// Base-time guard so re-delivered activation events cannot double-arm
	lastScheduled   map[uuid.UUID]time.Time
	lastScheduledMu sync.Mutex
}

// NewOrchestrator creates a new reveal orchestrator with a worker pool
func NewOrchestrator(sessions SessionControl, answers AnswerCounter, batchSize int32) *Orchestrator {
	numWorkers := 4
	return &Orchestrator{
		sessions:   sessions,
		answers:    answers,
		batchSize:  batchSize,
		buffer:     RevealBuffer,
		clock:      clockwork.NewRealClock(),
		wakeCh:     make(chan struct{}, 1),
		instanceID: uuid.New().String()[:8], // short ID for logging

		numWorkers: numWorkers,
		workCh:     make(chan uuid.UUID, numWorkers*2),

		inFlight:      make(map[uuid.UUID]bool),
		activeTimers:  make(map[uuid.UUID]clockwork.Timer),
		lastScheduled: make(map[uuid.UUID]time.Time),
	}
}

// HandleQuizEvent routes broadcast events into schedule changes. Events are
// advisory: everything done here is also recovered by the poll loop and
// Rearm, so a lost event only costs latency.
func (o *Orchestrator) HandleQuizEvent(ctx context.Context, eventType events.EventType, sessionID uuid.UUID, payload []byte) error {
	switch eventType {
	case events.EventTypeQuestionActivated:
		var p events.QuestionActivatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal QuestionActivated payload: %w", err)
		}
		return o.handleQuestionActivated(ctx, sessionID, p)

	case events.EventTypeAnswerRevealed:
		// Manual reveal beat the timer; drop the pending one so it cannot
		// fire a stale second reveal.
		o.cancelTimer(sessionID)
		return nil

	case events.EventTypeAnswerCountUpdated:
		var p events.AnswerCountUpdatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal AnswerCountUpdated payload: %w", err)
		}
		return o.handleAnswerCountUpdated(ctx, sessionID, p)

	case events.EventTypeSessionEnded:
		o.cancelTimer(sessionID)
		return nil

	default:
		// Joins, leaderboards and session starts need no timer action.
		return nil
	}
}

func (o *Orchestrator) handleQuestionActivated(ctx context.Context, sessionID uuid.UUID, p events.QuestionActivatedPayload) error {
	log.Info().
		Str("session_id", sessionID.String()).
		Str("question_id", p.QuestionID).
		Int("index", p.QuestionIndex).
		Msg("handling QuestionActivated event")

	limit := time.Duration(p.TimeLimitSec) * time.Second
	o.scheduleReveal(ctx, sessionID, p.StartedAt, limit)
	return nil
}

func (o *Orchestrator) handleAnswerCountUpdated(ctx context.Context, sessionID uuid.UUID, p events.AnswerCountUpdatedPayload) error {
	if p.ParticipantCount == 0 || p.AnswerCount < p.ParticipantCount {
		return nil
	}

	// Counts in the event are a hint; the worker re-checks against the
	// store before revealing early.
	log.Info().
		Str("session_id", sessionID.String()).
		Int("answers", p.AnswerCount).
		Int("participants", p.ParticipantCount).
		Msg("all participants answered; queueing early reveal")
	o.enqueue(ctx, sessionID)
	return nil
}

// Rearm rebuilds the local timer from stored state. Called on startup so
// an admin process restart mid-question still reveals on schedule.
func (o *Orchestrator) Rearm(ctx context.Context) error {
	nd, err := o.sessions.FetchNextRevealDeadline(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch reveal deadline for rearm: %w", err)
	}
	if nd == nil {
		log.Info().Str("instance", o.instanceID).Msg("no active question; nothing to rearm")
		return nil
	}

	s, err := o.sessions.GetSession(ctx, nd.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session for rearm: %w", err)
	}
	if s.Phase != models.PhaseActive || s.QuestionStartedAt == nil {
		return nil
	}

	log.Info().
		Str("instance", o.instanceID).
		Str("session_id", nd.SessionID.String()).
		Time("deadline", nd.Deadline).
		Msg("rearming auto-reveal from stored state")
	o.scheduleReveal(ctx, nd.SessionID, *s.QuestionStartedAt, s.TimeLimit())
	return nil
}

// handleReveal forces the reveal if the session is still active. Every
// guard lives in the store: a session already revealed, completed, or on a
// later question makes this a no-op.
func (o *Orchestrator) handleReveal(ctx context.Context, sessionID uuid.UUID) error {
	s, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session for reveal: %w", err)
	}
	if s.Phase != models.PhaseActive || s.CurrentQuestionID == nil {
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("phase", string(s.Phase)).
			Msg("session no longer active; skipping auto-reveal")
		return nil
	}

	// Fire early only when the store confirms everyone answered, or the
	// buffered deadline truly passed.
	deadline, _ := s.QuestionDeadline()
	if o.clock.Now().Before(deadline.Add(o.buffer)) {
		done, err := o.answers.AllAnswered(ctx, sessionID, *s.CurrentQuestionID)
		if err != nil {
			return fmt.Errorf("failed to check answer completion: %w", err)
		}
		if !done {
			return nil
		}
	}

	if _, err := o.sessions.Reveal(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrPhaseConflict) {
			log.Debug().Str("session_id", sessionID.String()).Msg("reveal already applied by another actor")
			return nil
		}
		return fmt.Errorf("auto-reveal failed: %w", err)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("question_id", s.CurrentQuestionID.String()).
		Msg("auto-reveal applied")
	return nil
}

// enqueue hands a session to the worker pool, skipping ones already being
// processed.
func (o *Orchestrator) enqueue(ctx context.Context, sessionID uuid.UUID) {
	o.inFlightMu.Lock()
	if o.inFlight[sessionID] {
		o.inFlightMu.Unlock()
		log.Debug().Str("session_id", sessionID.String()).Msg("skipping session already in flight")
		return
	}
	o.inFlight[sessionID] = true
	o.inFlightMu.Unlock()

	select {
	case o.workCh <- sessionID:
		log.Debug().Str("session_id", sessionID.String()).Msg("queued reveal for worker")
	case <-ctx.Done():
		o.inFlightMu.Lock()
		delete(o.inFlight, sessionID)
		o.inFlightMu.Unlock()
	}
}

// worker processes reveal work from the work channel
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Info().
		Str("instance", o.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case sessionID, ok := <-o.workCh:
			if !ok {
				log.Info().
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("work channel closed, worker shutting down")
				return
			}

			if err := o.handleReveal(ctx, sessionID); err != nil {
				log.Error().
					Err(err).
					Str("session_id", sessionID.String()).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("worker reveal handling failed")
			}

			// Clean up in-flight tracking regardless of success/failure
			o.inFlightMu.Lock()
			delete(o.inFlight, sessionID)
			o.inFlightMu.Unlock()
		}
	}
}
