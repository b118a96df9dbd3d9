package reveal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/broadcast"
	"github.com/david2928/wedding-sub000/internal/quiz/events"
)

// ConsumerConfig holds configuration for the reveal event consumer
type ConsumerConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConsumerConfig returns default consumer configuration
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer subscribes to quiz events and feeds them to the
// orchestrator so timers arm the instant a question activates. The
// subscription is core NATS and may drop events; the orchestrator's store
// poll covers whatever is missed.
type EventConsumer struct {
	orchestrator *Orchestrator
	nc           *nats.Conn
	config       ConsumerConfig
}

// NewEventConsumer creates a new reveal event consumer
func NewEventConsumer(o *Orchestrator, config ConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &EventConsumer{
		orchestrator: o,
		nc:           nc,
		config:       config,
	}, nil
}

// Start begins consuming quiz events until the context is cancelled
func (ec *EventConsumer) Start(ctx context.Context) error {
	subject := broadcast.SubjectWildcard()
	log.Info().Str("subject", subject).Msg("starting reveal event consumer")

	messageCh := make(chan *nats.Msg, 100)
	sub, err := ec.nc.ChanSubscribe(subject, messageCh)
	if err != nil {
		return fmt.Errorf("subscribe to quiz events: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reveal event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(ctx, msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject).
					Msg("failed to process quiz event")
			}
		}
	}
}

// processMessage routes one quiz event into the orchestrator
func (ec *EventConsumer) processMessage(ctx context.Context, msg *nats.Msg) error {
	var event events.QuizEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	sessionID, err := uuid.Parse(event.SessionID)
	if err != nil {
		return fmt.Errorf("parse session ID: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("session_id", event.SessionID).
		Str("event_type", string(event.Type)).
		Msg("processing quiz event")

	if err := ec.orchestrator.HandleQuizEvent(ctx, event.Type, sessionID, event.Data); err != nil {
		return err
	}

	// A changed schedule may have made the next deadline sooner.
	if event.Type == events.EventTypeQuestionActivated || event.Type == events.EventTypeAnswerRevealed {
		ec.orchestrator.Wake()
	}
	return nil
}

// Stop gracefully shuts down the event consumer
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping reveal event consumer")
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
