package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/quiz/events"
)

// Publisher pushes quiz events onto the broadcast channel. Delivery is
// best-effort: the durable store is the source of truth, and clients that
// miss an event recover from it. Publish errors are therefore reported but
// never block a state transition.
type Publisher interface {
	Publish(ctx context.Context, event *events.QuizEvent) error
	Close() error
}

// SubjectPrefix is the root of the quiz event subject space.
const SubjectPrefix = "quiz.session"

// SubjectForSession returns the NATS subject a session's events are
// published on.
func SubjectForSession(sessionID string) string {
	return fmt.Sprintf("%s.%s.events", SubjectPrefix, sessionID)
}

// SubjectWildcard matches the event subjects of every session.
func SubjectWildcard() string {
	return fmt.Sprintf("%s.*.events", SubjectPrefix)
}

type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher publishes quiz events over core NATS pub/sub.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
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

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event *events.QuizEvent) error {
	subject := SubjectForSession(event.SessionID)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Session-ID": []string{event.SessionID},
			"Event-ID":   []string{event.ID},
		},
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(event.Type)).
		Str("event_id", event.ID).
		Msg("published quiz event")

	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// LogPublisher is an in-memory publisher for development and tests.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event *events.QuizEvent) error {
	log.Info().
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID).
		Str("event_id", event.ID).
		Msg("publishing quiz event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
