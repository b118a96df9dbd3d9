package participant

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
)

type fakeRepo struct {
	rows map[string]*models.Participant
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]*models.Participant)}
}

func key(sessionID, partyID uuid.UUID) string {
	return sessionID.String() + "/" + partyID.String()
}

func (f *fakeRepo) InsertParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	k := key(p.SessionID, p.PartyID)
	if _, ok := f.rows[k]; ok {
		return false, nil
	}
	cp := *p
	f.rows[k] = &cp
	return true, nil
}

func (f *fakeRepo) GetParticipant(ctx context.Context, sessionID, partyID uuid.UUID) (*models.Participant, error) {
	p, ok := f.rows[key(sessionID, partyID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	var out []models.Participant
	for _, p := range f.rows {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (f *fakeRepo) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n := 0
	for _, p := range f.rows {
		if p.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// creditScore mimics the answer repository's transactional score credit so
// rejoin tests can exercise a participant mid-game.
func (f *fakeRepo) creditScore(sessionID, partyID uuid.UUID, points int) {
	if p, ok := f.rows[key(sessionID, partyID)]; ok {
		p.TotalScore += points
		p.CorrectCount++
	}
}

type capturingPublisher struct {
	events []*events.QuizEvent
}

func (c *capturingPublisher) Publish(ctx context.Context, event *events.QuizEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *capturingPublisher) Close() error { return nil }

func newTestApp() (*App, *fakeRepo, *capturingPublisher, *clockwork.FakeClock) {
	repo := newFakeRepo()
	pub := &capturingPublisher{}
	clock := clockwork.NewFakeClock()
	return NewApp(repo, pub, clock), repo, pub, clock
}

func TestJoinSession_FirstJoinAwardsBonus(t *testing.T) {
	app, _, pub, _ := newTestApp()
	sessionID, partyID := uuid.New(), uuid.New()

	p, err := app.JoinSession(context.Background(), JoinRequest{
		SessionID:   sessionID,
		PartyID:     partyID,
		DisplayName: "Table Seven",
		BonusPoints: 50,
	})

	require.NoError(t, err)
	assert.Equal(t, 50, p.TotalScore)
	assert.True(t, p.HasBonus)
	assert.Equal(t, 0, p.CorrectCount)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.EventTypeParticipantJoined, pub.events[0].Type)
	assert.Equal(t, sessionID.String(), pub.events[0].SessionID)
}

func TestJoinSession_RejoinIsIdempotent(t *testing.T) {
	app, repo, pub, clock := newTestApp()
	sessionID, partyID := uuid.New(), uuid.New()

	first, err := app.JoinSession(context.Background(), JoinRequest{
		SessionID:   sessionID,
		PartyID:     partyID,
		DisplayName: "Table Seven",
		BonusPoints: 50,
	})
	require.NoError(t, err)

	// Accumulate some score, then rejoin later (reconnect after refresh).
	repo.creditScore(sessionID, partyID, 180)
	clock.Advance(5 * time.Minute)

	second, err := app.JoinSession(context.Background(), JoinRequest{
		SessionID:   sessionID,
		PartyID:     partyID,
		DisplayName: "Table Seven Renamed",
		BonusPoints: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.JoinedAt, second.JoinedAt)
	assert.Equal(t, "Table Seven", second.DisplayName)
	assert.Equal(t, 230, second.TotalScore, "rejoin must not re-award the bonus or reset the score")
	assert.Equal(t, 1, second.CorrectCount)

	assert.Len(t, pub.events, 1, "rejoin must not emit a second ParticipantJoined event")
}

func TestJoinSession_Validation(t *testing.T) {
	app, _, _, _ := newTestApp()

	tests := []struct {
		name string
		req  JoinRequest
	}{
		{"missing session", JoinRequest{PartyID: uuid.New(), DisplayName: "x"}},
		{"missing party", JoinRequest{SessionID: uuid.New(), DisplayName: "x"}},
		{"blank name", JoinRequest{SessionID: uuid.New(), PartyID: uuid.New(), DisplayName: "   "}},
		{"negative bonus", JoinRequest{SessionID: uuid.New(), PartyID: uuid.New(), DisplayName: "x", BonusPoints: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.JoinSession(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestJoinSession_JoinOrderFollowsClock(t *testing.T) {
	app, _, _, clock := newTestApp()
	sessionID := uuid.New()

	_, err := app.JoinSession(context.Background(), JoinRequest{
		SessionID: sessionID, PartyID: uuid.New(), DisplayName: "early",
	})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)

	_, err = app.JoinSession(context.Background(), JoinRequest{
		SessionID: sessionID, PartyID: uuid.New(), DisplayName: "late",
	})
	require.NoError(t, err)

	participants, err := app.ListParticipants(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "early", participants[0].DisplayName)
	assert.Equal(t, "late", participants[1].DisplayName)
	assert.True(t, participants[0].JoinedAt.Before(participants[1].JoinedAt))
}
