package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrParse matches every *ParseError via errors.Is.
var ErrParse = errors.New("event parse error")

type ParseErrorKind string

const (
	MalformedBody    ParseErrorKind = "malformed_body"
	MissingEventType ParseErrorKind = "missing_event_type"
	UnknownEventType ParseErrorKind = "unknown_event_type"
)

// ParseError means the message can never become a valid envelope. The
// consumer acknowledges such messages instead of retrying them.
type ParseError struct {
	Kind ParseErrorKind
	// Value holds the raw event_type for UnknownEventType.
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Kind == UnknownEventType:
		return fmt.Sprintf("%s: unknown event type %q", ErrParse, e.Value)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", ErrParse, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", ErrParse, e.Kind)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Fields of a topic notification wrapper, present when the message was
// delivered through a topic subscription rather than sent to the queue directly.
const (
	wrapperTopicField   = "TopicArn"
	wrapperMessageField = "Message"
)

const unknown = "unknown"

// timestampLayouts covers RFC 3339 and the zone-less ISO form some producers
// emit. Zone-less values are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Parse decodes a raw queue body into an Envelope. It is a pure function of
// its inputs: now is only used as the fallback for a missing timestamp.
//
// A body wrapped by a topic subscription is unwrapped exactly once. Missing
// event_id and service_name default to "unknown".
func Parse(body []byte, now time.Time) (Envelope, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return Envelope{}, &ParseError{Kind: MalformedBody, Err: err}
	}

	if inner, wrapped := unwrapNotification(obj); wrapped {
		innerObj, err := decodeObject([]byte(inner))
		if err != nil {
			return Envelope{}, &ParseError{Kind: MalformedBody, Err: fmt.Errorf("wrapped message: %w", err)}
		}
		obj = innerObj
	}

	rawType, present := obj["event_type"]
	if !present || rawType == nil {
		return Envelope{}, &ParseError{Kind: MissingEventType}
	}
	typeStr, ok := rawType.(string)
	if !ok {
		return Envelope{}, &ParseError{Kind: UnknownEventType, Value: fmt.Sprint(rawType)}
	}
	if typeStr == "" {
		return Envelope{}, &ParseError{Kind: MissingEventType}
	}
	eventType := Type(typeStr)
	if !eventType.Valid() {
		return Envelope{}, &ParseError{Kind: UnknownEventType, Value: typeStr}
	}

	payload, err := optionalObject(obj, "data")
	if err != nil {
		return Envelope{}, &ParseError{Kind: MalformedBody, Err: err}
	}
	metadata, err := optionalObject(obj, "metadata")
	if err != nil {
		return Envelope{}, &ParseError{Kind: MalformedBody, Err: err}
	}

	return Envelope{
		eventType:     eventType,
		eventID:       stringOr(obj, "event_id", unknown),
		sourceService: stringOr(obj, "service_name", unknown),
		occurredAt:    timestampOr(obj, "timestamp", now),
		payload:       payload,
		metadata:      metadata,
	}, nil
}

// unwrapNotification reports whether obj is a topic notification and returns
// the inner message body.
func unwrapNotification(obj map[string]any) (string, bool) {
	if _, ok := obj[wrapperTopicField]; !ok {
		return "", false
	}
	inner, ok := obj[wrapperMessageField].(string)
	if !ok {
		return "", false
	}
	return inner, true
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	// Snowflake IDs exceed float64 precision.
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("body is not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}

func optionalObject(obj map[string]any, key string) (map[string]any, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object, got %T", key, raw)
	}
	return m, nil
}

func stringOr(obj map[string]any, key, fallback string) string {
	if s, ok := obj[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func timestampOr(obj map[string]any, key string, fallback time.Time) time.Time {
	s, ok := obj[key].(string)
	if !ok || s == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
