package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Subscription routes messages published to a topic into a queue.
type Subscription struct {
	Topic string `json:"topic"`
	Queue string `json:"queue"`

	// FilterPolicy maps an attribute name to the values it may take. A
	// message is delivered only when every listed attribute matches. For
	// target_services, whose value is a JSON array, any shared element
	// matches. An empty policy accepts everything.
	FilterPolicy map[string][]string `json:"filter_policy,omitempty"`

	// RawDelivery delivers the published body as-is instead of wrapping it
	// in a notification.
	RawDelivery bool `json:"raw_delivery,omitempty"`
}

// Accepts reports whether a message with attrs passes the filter policy.
func (s Subscription) Accepts(attrs map[string]string) bool {
	for name, allowed := range s.FilterPolicy {
		if len(allowed) == 0 {
			continue
		}
		value, ok := attrs[name]
		if !ok {
			return false
		}
		if !attributeMatches(value, allowed) {
			return false
		}
	}
	return true
}

func attributeMatches(value string, allowed []string) bool {
	var list []string
	if err := json.Unmarshal([]byte(value), &list); err == nil {
		for _, v := range list {
			if slices.Contains(allowed, v) {
				return true
			}
		}
		return false
	}
	return slices.Contains(allowed, value)
}

func subscriptionsKey(topic string) string {
	return fmt.Sprintf("roster:subscriptions:%s", topic)
}

// Subscribe creates or replaces the subscription of sub.Queue to sub.Topic.
func (t *RedisTransport) Subscribe(ctx context.Context, sub Subscription) error {
	if sub.Topic == "" || sub.Queue == "" {
		return fmt.Errorf("subscription needs a topic and a queue")
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding subscription: %w", err)
	}
	if err := t.client.HSet(ctx, subscriptionsKey(sub.Topic), sub.Queue, raw).Err(); err != nil {
		return fmt.Errorf("saving subscription: %w", err)
	}
	return nil
}

func (t *RedisTransport) Unsubscribe(ctx context.Context, topic, queue string) error {
	if err := t.client.HDel(ctx, subscriptionsKey(topic), queue).Err(); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// Subscriptions lists the subscriptions of topic ordered by queue name.
func (t *RedisTransport) Subscriptions(ctx context.Context, topic string) ([]Subscription, error) {
	entries, err := t.client.HGetAll(ctx, subscriptionsKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading subscriptions for %s: %w", topic, err)
	}

	subs := make([]Subscription, 0, len(entries))
	for queue, raw := range entries {
		var sub Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("decoding subscription %s: %w", queue, err)
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Queue < subs[j].Queue })
	return subs, nil
}

// notification is the envelope a topic wraps around a message before
// delivering it to a subscribed queue.
type notification struct {
	Type              string                    `json:"Type"`
	MessageID         string                    `json:"MessageId"`
	TopicArn          string                    `json:"TopicArn"`
	Message           string                    `json:"Message"`
	Timestamp         string                    `json:"Timestamp"`
	MessageAttributes map[string]notificationAttr `json:"MessageAttributes,omitempty"`
}

type notificationAttr struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

func newNotification(topic string, body []byte, attrs map[string]string) notification {
	n := notification{
		Type:      "Notification",
		MessageID: uuid.NewString(),
		TopicArn:  topic,
		Message:   string(body),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(attrs) > 0 {
		n.MessageAttributes = make(map[string]notificationAttr, len(attrs))
		for k, v := range attrs {
			n.MessageAttributes[k] = notificationAttr{Type: "String", Value: v}
		}
	}
	return n
}
