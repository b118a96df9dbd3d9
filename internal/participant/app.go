package participant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/broadcast"
	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
)

// MaxDisplayNameLen caps player names before they are stored or broadcast.
const MaxDisplayNameLen = 64

// ParticipantRepository defines what the participant app layer needs from
// the participant repository
type ParticipantRepository interface {
	InsertParticipant(ctx context.Context, p *models.Participant) (bool, error)
	GetParticipant(ctx context.Context, sessionID, partyID uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// JoinRequest carries everything needed to enroll a party in a session.
type JoinRequest struct {
	SessionID   uuid.UUID
	PartyID     uuid.UUID
	DisplayName string
	// BonusPoints is credited once, on the first join only. Rejoining
	// never re-awards it.
	BonusPoints int
}

// App handles participant business logic
type App struct {
	repo      ParticipantRepository
	publisher broadcast.Publisher
	clock     clockwork.Clock
}

func NewApp(repo ParticipantRepository, publisher broadcast.Publisher, clock clockwork.Clock) *App {
	return &App{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
	}
}

// JoinSession enrolls a party in a session. The operation is idempotent:
// repeated joins for the same (session, party) pair return the existing
// participant with their accumulated score intact, never a fresh row.
func (a *App) JoinSession(ctx context.Context, req JoinRequest) (*models.Participant, error) {
	if err := a.validateJoinRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	candidate := &models.Participant{
		ID:           uuid.New(),
		SessionID:    req.SessionID,
		PartyID:      req.PartyID,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		TotalScore:   req.BonusPoints,
		CorrectCount: 0,
		HasBonus:     req.BonusPoints > 0,
		JoinedAt:     a.clock.Now().UTC(),
	}

	inserted, err := a.repo.InsertParticipant(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	// Re-read either way: on conflict the candidate row was discarded and
	// the stored participant is the one that counts.
	p, err := a.repo.GetParticipant(ctx, req.SessionID, req.PartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant after join: %w", err)
	}

	if inserted {
		a.publishJoined(ctx, p)
	}

	return p, nil
}

// GetParticipant retrieves one participant of a session
func (a *App) GetParticipant(ctx context.Context, sessionID, partyID uuid.UUID) (*models.Participant, error) {
	return a.repo.GetParticipant(ctx, sessionID, partyID)
}

// ListParticipants retrieves a session's participants in join order
func (a *App) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	return a.repo.ListParticipants(ctx, sessionID)
}

// CountParticipants returns how many parties have joined a session
func (a *App) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return a.repo.CountParticipants(ctx, sessionID)
}

func (a *App) publishJoined(ctx context.Context, p *models.Participant) {
	count, err := a.repo.CountParticipants(ctx, p.SessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", p.SessionID.String()).Msg("failed to count participants for join event")
		count = 0
	}

	event, err := events.NewQuizEvent(p.SessionID, events.EventTypeParticipantJoined, events.ParticipantJoinedPayload{
		SessionID:        p.SessionID.String(),
		PartyID:          p.PartyID.String(),
		DisplayName:      p.DisplayName,
		JoinedAt:         p.JoinedAt,
		ParticipantCount: count,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build ParticipantJoined event")
		return
	}

	// Broadcast is best-effort: a lost event is healed by client recovery.
	if err := a.publisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("session_id", p.SessionID.String()).
			Msg("failed to publish ParticipantJoined event")
	}
}

func (a *App) validateJoinRequest(req JoinRequest) error {
	if req.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	if req.PartyID == uuid.Nil {
		return fmt.Errorf("party_id is required")
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return fmt.Errorf("display_name is required")
	}
	if len(name) > MaxDisplayNameLen {
		return fmt.Errorf("display_name exceeds %d characters", MaxDisplayNameLen)
	}
	if req.BonusPoints < 0 {
		return fmt.Errorf("bonus_points cannot be negative")
	}
	return nil
}
