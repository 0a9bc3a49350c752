// Package event defines the wire envelope shared by the publisher and the
// consumer, and the parser that turns raw queue bodies into envelopes.
package event

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Type is the closed set of event types this service understands.
type Type string

const (
	UserCreated  Type = "user_created"
	UserUpdated  Type = "user_updated"
	UserDeleted  Type = "user_deleted"
	ModelCreated Type = "model_created"
	ModelUpdated Type = "model_updated"
)

var knownTypes = []Type{UserCreated, UserUpdated, UserDeleted, ModelCreated, ModelUpdated}

// Types returns every known event type in declaration order.
func Types() []Type {
	return slices.Clone(knownTypes)
}

func (t Type) Valid() bool {
	return slices.Contains(knownTypes, t)
}

func (t Type) String() string {
	return string(t)
}

// Service names a downstream subscriber that events can be addressed to.
type Service string

const (
	// ServiceAll is the broadcast sentinel. It never appears on the wire;
	// it is expanded to every known service at publish time.
	ServiceAll Service = "all"

	ServiceUser         Service = "user_service"
	ServiceProject      Service = "project_service"
	ServiceModel        Service = "model_service"
	ServiceSelection    Service = "selection_service"
	ServiceNotification Service = "notification_service"
)

var knownServices = []Service{ServiceUser, ServiceProject, ServiceModel, ServiceSelection, ServiceNotification}

// KnownServices returns every addressable service, excluding the broadcast sentinel.
func KnownServices() []Service {
	return slices.Clone(knownServices)
}

// Targets is either a broadcast or an explicit list of services.
// The zero value is a broadcast.
type Targets struct {
	services []Service
}

// Broadcast addresses every known service.
func Broadcast() Targets {
	return Targets{}
}

// To addresses an explicit list of services. Passing ServiceAll, or nothing,
// is the same as Broadcast.
func To(services ...Service) Targets {
	return Targets{services: slices.Clone(services)}
}

func (t Targets) IsBroadcast() bool {
	return len(t.services) == 0 || slices.Contains(t.services, ServiceAll)
}

// Resolve returns the literal list of target names. A broadcast expands to
// every known service; an explicit list passes through unchanged.
func (t Targets) Resolve() []string {
	src := t.services
	if t.IsBroadcast() {
		src = knownServices
	}
	out := make([]string, len(src))
	for i, s := range src {
		out[i] = string(s)
	}
	return out
}

const (
	MetaTargetServices = "target_services"
	MetaPublishedAt    = "published_at"
	MetaTraceID        = "trace_id"
)

// Envelope is one validated domain event. It is immutable: constructors copy
// their inputs and accessors return copies, so nothing downstream can mutate
// the payload another handler will see.
type Envelope struct {
	eventType     Type
	eventID       string
	sourceService string
	occurredAt    time.Time
	payload       map[string]any
	metadata      map[string]any
}

// NewEnvelope builds an envelope, copying payload and metadata.
func NewEnvelope(eventType Type, eventID, sourceService string, occurredAt time.Time, payload, metadata map[string]any) Envelope {
	return Envelope{
		eventType:     eventType,
		eventID:       eventID,
		sourceService: sourceService,
		occurredAt:    occurredAt,
		payload:       copyMap(payload),
		metadata:      copyMap(metadata),
	}
}

func (e Envelope) Type() Type            { return e.eventType }
func (e Envelope) ID() string            { return e.eventID }
func (e Envelope) SourceService() string { return e.sourceService }
func (e Envelope) OccurredAt() time.Time { return e.occurredAt }

// Payload returns a copy of the event-specific fields.
func (e Envelope) Payload() map[string]any {
	return copyMap(e.payload)
}

// Metadata returns a copy of the observability fields.
func (e Envelope) Metadata() map[string]any {
	return copyMap(e.metadata)
}

// TargetServices returns metadata.target_services as strings.
func (e Envelope) TargetServices() []string {
	switch v := e.metadata[MetaTargetServices].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// TraceID returns the producer's trace ID, if it stamped one.
func (e Envelope) TraceID() string {
	s, _ := e.metadata[MetaTraceID].(string)
	return s
}

// DecodePayload decodes the payload into v via JSON, so handlers can validate
// a typed view of the fields they need.
func (e Envelope) DecodePayload(v any) error {
	raw, err := json.Marshal(e.payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

// wireEnvelope is the JSON shape on the queue.
type wireEnvelope struct {
	EventType   Type           `json:"event_type"`
	EventID     string         `json:"event_id"`
	ServiceName string         `json:"service_name"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data"`
	Metadata    map[string]any `json:"metadata"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	data := e.payload
	if data == nil {
		data = map[string]any{}
	}
	meta := e.metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return json.Marshal(wireEnvelope{
		EventType:   e.eventType,
		EventID:     e.eventID,
		ServiceName: e.sourceService,
		Timestamp:   e.occurredAt.UTC(),
		Data:        data,
		Metadata:    meta,
	})
}

// PublishRequest is what business code hands to the publisher. It becomes an
// Envelope only at publish time, when the ID and timestamp are assigned.
type PublishRequest struct {
	EventType     Type
	Payload       map[string]any
	SourceService string
	Targets       Targets

	// GroupID partitions ordering on FIFO-capable transports. Optional.
	GroupID string
}

const DefaultSourceService = "model_management"

// ToEnvelope assigns the event ID and timestamp and records the resolved
// target list in metadata.
func (r PublishRequest) ToEnvelope(eventID string, now time.Time) Envelope {
	source := r.SourceService
	if source == "" {
		source = DefaultSourceService
	}
	now = now.UTC()
	meta := map[string]any{
		MetaTargetServices: r.Targets.Resolve(),
		MetaPublishedAt:    now.Format(time.RFC3339Nano),
	}
	return NewEnvelope(r.EventType, eventID, source, now, r.Payload, meta)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
