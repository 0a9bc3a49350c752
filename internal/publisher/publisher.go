// Package publisher turns publish requests into envelopes and sends them to
// the configured topic.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"basegraph.app/roster/common/logger"
	"basegraph.app/roster/common/metrics"
	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/queue"
)

type ErrorKind string

const (
	NotConfigured    ErrorKind = "not_configured"
	TransportFailure ErrorKind = "transport_failure"
)

type PublishError struct {
	Kind ErrorKind
	Err  error
}

func (e *PublishError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("publish failed: %s", e.Kind)
	}
	return fmt.Sprintf("publish failed: %s: %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *PublishError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == kind
}

// Sender is the publishing half of queue.Transport.
type Sender interface {
	Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) (string, error)
}

type Config struct {
	Topic string
	// SourceService is used when a request does not name its own source.
	SourceService string
}

type Publisher struct {
	sender Sender
	cfg    Config
	newID  func() string
	now    func() time.Time
}

func New(sender Sender, cfg Config) *Publisher {
	if cfg.SourceService == "" {
		cfg.SourceService = event.DefaultSourceService
	}
	return &Publisher{
		sender: sender,
		cfg:    cfg,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Configured reports whether Publish can succeed at all.
func (p *Publisher) Configured() bool {
	return p != nil && p.sender != nil && p.cfg.Topic != ""
}

func (p *Publisher) Topic() string {
	if p == nil {
		return ""
	}
	return p.cfg.Topic
}

// Publish sends one event and returns the transport's message ID. It never
// panics; every failure is reported as a *PublishError.
func (p *Publisher) Publish(ctx context.Context, req event.PublishRequest) (messageID string, err error) {
	if !p.Configured() {
		return "", &PublishError{Kind: NotConfigured}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered while publishing event",
				"panic", r,
				"event_type", req.EventType)
			messageID = ""
			err = &PublishError{Kind: TransportFailure, Err: fmt.Errorf("panic: %v", r)}
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.EventsPublished.WithLabelValues(string(req.EventType), status).Inc()
	}()

	if req.SourceService == "" {
		req.SourceService = p.cfg.SourceService
	}
	env := req.ToEnvelope(p.newID(), p.now())
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		meta := env.Metadata()
		meta[event.MetaTraceID] = traceID
		env = event.NewEnvelope(env.Type(), env.ID(), env.SourceService(), env.OccurredAt(), env.Payload(), meta)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", &PublishError{Kind: TransportFailure, Err: fmt.Errorf("encoding envelope: %w", err)}
	}

	attrs, err := Attributes(env, req.GroupID)
	if err != nil {
		return "", &PublishError{Kind: TransportFailure, Err: err}
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:   logger.Ptr(env.ID()),
		EventType: logger.Ptr(string(env.Type())),
	})

	messageID, err = p.sender.Publish(ctx, p.cfg.Topic, body, attrs)
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish event",
			"error", err,
			"topic", p.cfg.Topic)
		return "", &PublishError{Kind: TransportFailure, Err: err}
	}

	slog.InfoContext(ctx, "published event",
		"topic", p.cfg.Topic,
		"message_id", messageID,
		"target_services", env.TargetServices())
	return messageID, nil
}

// Attributes builds the message attributes subscribers filter on.
// target_services is a JSON array of literal service names.
func Attributes(env event.Envelope, groupID string) (map[string]string, error) {
	targets, err := json.Marshal(env.TargetServices())
	if err != nil {
		return nil, fmt.Errorf("encoding target services: %w", err)
	}
	attrs := map[string]string{
		queue.AttrEventType:      string(env.Type()),
		queue.AttrEventID:        env.ID(),
		queue.AttrSourceService:  env.SourceService(),
		queue.AttrTargetServices: string(targets),
	}
	if groupID != "" {
		attrs[queue.AttrGroupID] = groupID
	}
	return attrs, nil
}
