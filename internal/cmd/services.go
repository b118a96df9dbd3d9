package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/david2928/wedding-sub000/internal/answer"
	"github.com/david2928/wedding-sub000/internal/broadcast"
	"github.com/david2928/wedding-sub000/internal/gateway"
	"github.com/david2928/wedding-sub000/internal/participant"
	"github.com/david2928/wedding-sub000/internal/question"
	"github.com/david2928/wedding-sub000/internal/reveal"
	"github.com/david2928/wedding-sub000/internal/session"
)

type Services struct {
	Config       *Config
	Sessions     *session.App
	Questions    *question.App
	Participants *participant.App
	Answers      *answer.App
	State        *gateway.StateService
	Orchestrator *reveal.Orchestrator
	Publisher    broadcast.Publisher
}

func setupServices(pool *pgxpool.Pool, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Gateway layer

	natsURL := getEnv("NATS_URL", config.NATS.URL)
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	natsConfig := broadcast.DefaultNATSConfig()
	natsConfig.URL = natsURL
	publisher, err := broadcast.NewNATSPublisher(natsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast publisher: %w", err)
	}

	clock := clockwork.NewRealClock()

	// Questions
	questionRepo := question.NewRepository(pool)
	questionApp := question.NewApp(questionRepo)

	// Participants
	participantRepo := participant.NewRepository(pool)
	participantApp := participant.NewApp(participantRepo, publisher, clock)

	// Sessions (needs answers for reveal stats)
	answerRepo := answer.NewRepository(pool)
	sessionRepo := session.NewRepository(pool)
	sessionApp := session.NewApp(sessionRepo, questionApp, participantApp, answerRepo, publisher, clock)

	// Answers
	answerApp := answer.NewApp(answerRepo, sessionApp, questionApp, participantApp, publisher, clock)

	// Recovery state service
	stateService := gateway.NewStateService(sessionApp, questionApp, participantApp, answerApp)

	// Auto-reveal orchestrator
	orchestrator := reveal.NewOrchestrator(sessionApp, answerApp, config.Quiz.RevealBatchSize)

	return &Services{
		Config:       config,
		Sessions:     sessionApp,
		Questions:    questionApp,
		Participants: participantApp,
		Answers:      answerApp,
		State:        stateService,
		Orchestrator: orchestrator,
		Publisher:    publisher,
	}, nil
}
