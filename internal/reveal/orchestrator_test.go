package reveal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
	"github.com/david2928/wedding-sub000/internal/session"
)

type fakeSessionControl struct {
	mu          sync.Mutex
	session     *models.Session
	revealCalls int
}

func (f *fakeSessionControl) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.session
	return &cp, nil
}

func (f *fakeSessionControl) Reveal(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.Phase != models.PhaseActive {
		return nil, session.ErrPhaseConflict
	}
	f.session.Phase = models.PhaseShowingAnswer
	f.revealCalls++
	cp := *f.session
	return &cp, nil
}

func (f *fakeSessionControl) FetchSessionsDueForReveal(ctx context.Context, cutoff time.Time, limit int32) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.Phase != models.PhaseActive {
		return nil, nil
	}
	if deadline, ok := f.session.QuestionDeadline(); ok && !deadline.After(cutoff) {
		return []uuid.UUID{f.session.ID}, nil
	}
	return nil, nil
}

func (f *fakeSessionControl) FetchNextRevealDeadline(ctx context.Context) (*session.RevealDeadline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.Phase != models.PhaseActive || f.session.CurrentQuestionID == nil {
		return nil, nil
	}
	deadline, _ := f.session.QuestionDeadline()
	return &session.RevealDeadline{
		SessionID:  f.session.ID,
		QuestionID: *f.session.CurrentQuestionID,
		Deadline:   deadline,
	}, nil
}

func (f *fakeSessionControl) reveals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revealCalls
}

type fakeAnswerCounter struct {
	mu   sync.Mutex
	done bool
}

func (f *fakeAnswerCounter) AllAnswered(ctx context.Context, sessionID, questionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done, nil
}

func activeSession(clock clockwork.Clock, limitSec int) *models.Session {
	questionID := uuid.New()
	startedAt := clock.Now().UTC()
	return &models.Session{
		ID:                uuid.New(),
		QuestionSetID:     uuid.New(),
		Phase:             models.PhaseActive,
		CurrentQuestionID: &questionID,
		QuestionStartedAt: &startedAt,
		TimeLimitSec:      limitSec,
	}
}

func newTestOrchestrator(sessions *fakeSessionControl, answers *fakeAnswerCounter, clock Clock) *Orchestrator {
	o := NewOrchestrator(sessions, answers, 10)
	o.clock = clock
	return o
}

func expectWork(t *testing.T, o *Orchestrator, want uuid.UUID) {
	t.Helper()
	select {
	case got := <-o.workCh:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("expected reveal work to be enqueued")
	}
}

func expectNoWork(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case got := <-o.workCh:
		t.Fatalf("unexpected reveal work enqueued for %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleReveal_FiresAtBufferedDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	o.scheduleReveal(context.Background(), sessions.session.ID, *sessions.session.QuestionStartedAt, 30*time.Second)

	// One second short of the buffered deadline: nothing fires.
	clock.Advance(30*time.Second + RevealBuffer - time.Second)
	expectNoWork(t, o)

	clock.Advance(time.Second)
	expectWork(t, o, sessions.session.ID)
}

func TestScheduleReveal_DuplicateActivationArmsOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	startedAt := *sessions.session.QuestionStartedAt
	o.scheduleReveal(context.Background(), sessions.session.ID, startedAt, 30*time.Second)
	o.scheduleReveal(context.Background(), sessions.session.ID, startedAt, 30*time.Second)

	o.activeTimersMu.Lock()
	assert.Len(t, o.activeTimers, 1, "re-delivered activation must not arm a second timer")
	o.activeTimersMu.Unlock()

	clock.Advance(30*time.Second + RevealBuffer)
	expectWork(t, o, sessions.session.ID)
	expectNoWork(t, o)
}

func TestScheduleReveal_OverdueActivationEnqueuesImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	// An activation recovered from the store long after its deadline.
	stale := clock.Now().UTC().Add(-5 * time.Minute)
	o.scheduleReveal(context.Background(), sessions.session.ID, stale, 30*time.Second)

	expectWork(t, o, sessions.session.ID)
}

func TestManualRevealCancelsPendingTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	o.scheduleReveal(context.Background(), sessions.session.ID, *sessions.session.QuestionStartedAt, 30*time.Second)

	// Admin reveals at T+10s; the AnswerRevealed event cancels the timer.
	clock.Advance(10 * time.Second)
	err := o.HandleQuizEvent(context.Background(), events.EventTypeAnswerRevealed, sessions.session.ID, nil)
	require.NoError(t, err)

	o.activeTimersMu.Lock()
	assert.Empty(t, o.activeTimers)
	o.activeTimersMu.Unlock()

	clock.Advance(30 * time.Second)
	expectNoWork(t, o)
}

func TestHandleReveal_AppliesWhenOverdue(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	clock.Advance(30*time.Second + RevealBuffer)

	require.NoError(t, o.handleReveal(context.Background(), sessions.session.ID))
	assert.Equal(t, 1, sessions.reveals())

	// Second firing for the same session is a no-op.
	require.NoError(t, o.handleReveal(context.Background(), sessions.session.ID))
	assert.Equal(t, 1, sessions.reveals())
}

func TestHandleReveal_SkipsWhenAlreadyRevealed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	sessions.session.Phase = models.PhaseShowingAnswer
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	clock.Advance(time.Minute)

	require.NoError(t, o.handleReveal(context.Background(), sessions.session.ID))
	assert.Equal(t, 0, sessions.reveals())
}

func TestHandleReveal_BeforeDeadlineNeedsAllAnswers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	answers := &fakeAnswerCounter{}
	o := newTestOrchestrator(sessions, answers, clock)

	clock.Advance(5 * time.Second)

	require.NoError(t, o.handleReveal(context.Background(), sessions.session.ID))
	assert.Equal(t, 0, sessions.reveals(), "early firing without full answers must not reveal")

	answers.done = true
	require.NoError(t, o.handleReveal(context.Background(), sessions.session.ID))
	assert.Equal(t, 1, sessions.reveals(), "all answered reveals early")
}

func TestHandleQuizEvent_FullAnswerCountQueuesEarlyReveal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{done: true}, clock)

	payload, err := json.Marshal(events.AnswerCountUpdatedPayload{
		SessionID:        sessions.session.ID.String(),
		QuestionID:       sessions.session.CurrentQuestionID.String(),
		AnswerCount:      3,
		ParticipantCount: 3,
	})
	require.NoError(t, err)

	require.NoError(t, o.HandleQuizEvent(context.Background(), events.EventTypeAnswerCountUpdated, sessions.session.ID, payload))
	expectWork(t, o, sessions.session.ID)
}

func TestHandleQuizEvent_PartialAnswerCountDoesNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	payload, err := json.Marshal(events.AnswerCountUpdatedPayload{
		SessionID:        sessions.session.ID.String(),
		QuestionID:       sessions.session.CurrentQuestionID.String(),
		AnswerCount:      1,
		ParticipantCount: 3,
	})
	require.NoError(t, err)

	require.NoError(t, o.HandleQuizEvent(context.Background(), events.EventTypeAnswerCountUpdated, sessions.session.ID, payload))
	expectNoWork(t, o)
}

func TestRearm_RestoresTimerFromStore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	// Admin process restarts 10s into the question: no events were seen,
	// only the store remains.
	clock.Advance(10 * time.Second)
	require.NoError(t, o.Rearm(context.Background()))

	o.activeTimersMu.Lock()
	assert.Len(t, o.activeTimers, 1)
	o.activeTimersMu.Unlock()

	clock.Advance(20*time.Second + RevealBuffer)
	expectWork(t, o, sessions.session.ID)
}

func TestRearm_NoActiveQuestionIsNoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessionControl{session: activeSession(clock, 30)}
	sessions.session.Phase = models.PhaseWaiting
	o := newTestOrchestrator(sessions, &fakeAnswerCounter{}, clock)

	require.NoError(t, o.Rearm(context.Background()))

	o.activeTimersMu.Lock()
	assert.Empty(t, o.activeTimers)
	o.activeTimersMu.Unlock()
}
