package gateway

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

// EventConsumerConfig holds configuration for the event consumer
type EventConsumerConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultEventConsumerConfig returns default configuration
func DefaultEventConsumerConfig() EventConsumerConfig {
	return EventConsumerConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer fans quiz events out from NATS to WebSocket clients. Core
// NATS pub/sub, deliberately non-durable: an event missed while a client
// (or this gateway) is disconnected is recovered from the state endpoint,
// never replayed.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	config            EventConsumerConfig
}

// NewEventConsumer creates a new event consumer
func NewEventConsumer(cm *ConnectionManager, config EventConsumerConfig) (*EventConsumer, error) {
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
		connectionManager: cm,
		nc:                nc,
		config:            config,
	}, nil
}

// Start begins consuming events and forwarding them to WebSocket clients
func (ec *EventConsumer) Start(ctx context.Context) error {
	subject := broadcast.SubjectWildcard()
	log.Info().Str("subject", subject).Msg("starting gateway event consumer")

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
			log.Info().Msg("gateway event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject).
					Msg("failed to process quiz event")
			}
		}
	}
}

// processMessage forwards one quiz event to the session's connections
func (ec *EventConsumer) processMessage(msg *nats.Msg) error {
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
		Msg("forwarding quiz event to WebSocket clients")

	ec.connectionManager.BroadcastToSession(sessionID, &event)
	return nil
}

// Stop gracefully shuts down the event consumer
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping gateway event consumer")
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
