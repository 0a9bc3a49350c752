package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/roster/common/logger"
)

type RedisConfig struct {
	Queue    string // Stream this process consumes from. Empty for publish-only processes.
	Group    string // Consumer group on Queue
	Consumer string // Consumer name within Group
	DLQ      string // Stream that receives entries delivered more than MaxReceiveCount times

	// VisibilityTimeout is how long a delivered, unacknowledged entry stays
	// invisible before Receive hands it out again.
	VisibilityTimeout time.Duration
	MaxReceiveCount   int

	// TopicMaxLen caps topic streams. Topic streams are an audit trail;
	// delivery happens through subscribed queues.
	TopicMaxLen int64
}

const (
	fieldBody        = "body"
	fieldAttributes  = "attributes"
	fieldReceive     = "receive_count"
	fieldSourceQueue = "source_queue"
	fieldSourceID    = "source_id"
	fieldDeadAt      = "dead_at"

	defaultTopicMaxLen = 10000
)

// RedisTransport implements Transport on Redis Streams. A queue is a stream
// read through a consumer group; a topic is a stream plus a set of
// subscriptions that Publish fans out to.
type RedisTransport struct {
	client *redis.Client
	cfg    RedisConfig
}

var _ Transport = (*RedisTransport)(nil)

func NewRedisTransport(ctx context.Context, client *redis.Client, cfg RedisConfig) (*RedisTransport, error) {
	if cfg.MaxReceiveCount <= 0 {
		cfg.MaxReceiveCount = 5
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.TopicMaxLen <= 0 {
		cfg.TopicMaxLen = defaultTopicMaxLen
	}
	if cfg.Queue != "" && cfg.DLQ == "" {
		cfg.DLQ = cfg.Queue + "_dlq"
	}

	t := &RedisTransport{client: client, cfg: cfg}
	if cfg.Queue != "" {
		if err := t.ensureGroup(ctx); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *RedisTransport) ensureGroup(ctx context.Context) error {
	// Start from "0" so entries added before the group existed are still delivered.
	err := t.client.XGroupCreateMkStream(ctx, t.cfg.Queue, t.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (t *RedisTransport) Receive(ctx context.Context, max int, wait time.Duration) ([]RawMessage, error) {
	if t.cfg.Queue == "" {
		return nil, ErrNoQueue
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "roster.queue.redis",
	})

	messages, err := t.reclaim(ctx, max)
	if err != nil {
		return nil, err
	}

	remaining := max - len(messages)
	if remaining <= 0 {
		return messages, nil
	}
	// Reclaimed entries are returned immediately rather than after a blocking read.
	block := wait
	if len(messages) > 0 || wait <= 0 {
		block = -1
	}

	streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.cfg.Group,
		Consumer: t.cfg.Consumer,
		Streams:  []string{t.cfg.Queue, ">"},
		Count:    int64(remaining),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return messages, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, toRawMessage(msg, 1))
		}
	}

	if len(messages) > 0 {
		slog.DebugContext(ctx, "received messages",
			"count", len(messages),
			"queue", t.cfg.Queue,
			"consumer", t.cfg.Consumer)
	}
	return messages, nil
}

// reclaim takes over entries that were delivered but not acknowledged within
// the visibility timeout. Entries already delivered MaxReceiveCount times are
// moved to the dead-letter stream instead.
func (t *RedisTransport) reclaim(ctx context.Context, max int) ([]RawMessage, error) {
	// Idle filters server-side so Count applies to expired entries only.
	pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: t.cfg.Queue,
		Group:  t.cfg.Group,
		Idle:   t.cfg.VisibilityTimeout,
		Start:  "-",
		End:    "+",
		Count:  int64(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}

	var messages []RawMessage
	for _, p := range pending {
		claimed, err := t.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   t.cfg.Queue,
			Group:    t.cfg.Group,
			Consumer: t.cfg.Consumer,
			MinIdle:  t.cfg.VisibilityTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			slog.ErrorContext(ctx, "failed to reclaim message",
				"error", err,
				"message_id", p.ID,
				"original_consumer", p.Consumer)
			continue
		}
		if len(claimed) == 0 {
			// Another consumer got there first, or the entry was deleted.
			continue
		}

		msg := claimed[0]
		if int(p.RetryCount) >= t.cfg.MaxReceiveCount {
			if err := t.deadLetter(ctx, msg, int(p.RetryCount)); err != nil {
				slog.ErrorContext(ctx, "failed to dead-letter message",
					"error", err,
					"message_id", msg.ID)
			}
			continue
		}

		slog.InfoContext(ctx, "redelivering message after visibility timeout",
			"message_id", msg.ID,
			"original_consumer", p.Consumer,
			"idle_time", p.Idle,
			"receive_count", p.RetryCount+1)
		messages = append(messages, toRawMessage(msg, int(p.RetryCount)+1))
	}
	return messages, nil
}

func (t *RedisTransport) deadLetter(ctx context.Context, msg redis.XMessage, receiveCount int) error {
	values := map[string]any{
		fieldBody:        stringValue(msg.Values, fieldBody),
		fieldAttributes:  stringValue(msg.Values, fieldAttributes),
		fieldReceive:     receiveCount,
		fieldSourceQueue: t.cfg.Queue,
		fieldSourceID:    msg.ID,
		fieldDeadAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: t.cfg.DLQ, Values: values})
		pipe.XAck(ctx, t.cfg.Queue, t.cfg.Group, msg.ID)
		pipe.XDel(ctx, t.cfg.Queue, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", t.cfg.DLQ, err)
	}

	slog.ErrorContext(ctx, "message moved to dead-letter queue",
		"message_id", msg.ID,
		"receive_count", receiveCount,
		"dlq_stream", t.cfg.DLQ)
	return nil
}

// Delete acknowledges and removes the entry. The receipt handle names one
// delivery to this consumer; once the entry has been reclaimed, by this or
// another consumer, the old handle is rejected with ErrUnknownReceipt.
// The ownership check and the XACK are separate round trips, so a reclaim
// landing between them is still acknowledged.
func (t *RedisTransport) Delete(ctx context.Context, receiptHandle string) error {
	if t.cfg.Queue == "" {
		return ErrNoQueue
	}
	id, delivery, ok := parseReceipt(receiptHandle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReceipt, receiptHandle)
	}

	pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   t.cfg.Queue,
		Group:    t.cfg.Group,
		Start:    id,
		End:      id,
		Count:    1,
		Consumer: t.cfg.Consumer,
	}).Result()
	if err != nil {
		return fmt.Errorf("xpending (stream=%s): %w", t.cfg.Queue, err)
	}
	if len(pending) == 0 || pending[0].RetryCount != delivery {
		return fmt.Errorf("%w: %s", ErrUnknownReceipt, receiptHandle)
	}

	acked, err := t.client.XAck(ctx, t.cfg.Queue, t.cfg.Group, id).Result()
	if err != nil {
		return fmt.Errorf("xack (stream=%s): %w", t.cfg.Queue, err)
	}
	if acked == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownReceipt, receiptHandle)
	}
	if err := t.client.XDel(ctx, t.cfg.Queue, id).Err(); err != nil {
		return fmt.Errorf("xdel (stream=%s): %w", t.cfg.Queue, err)
	}
	return nil
}

// Publish appends the message to the topic stream and delivers a notification
// to every subscribed queue whose filter policy accepts attrs. It returns the
// notification's message ID, which is shared by all deliveries.
func (t *RedisTransport) Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) (string, error) {
	attrJSON := encodeAttributes(attrs)

	subs, err := t.Subscriptions(ctx, topic)
	if err != nil {
		return "", err
	}

	note := newNotification(topic, body, attrs)
	noteJSON, err := json.Marshal(note)
	if err != nil {
		return "", fmt.Errorf("encoding notification: %w", err)
	}

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: topic,
			MaxLen: t.cfg.TopicMaxLen,
			Values: map[string]any{fieldBody: string(body), fieldAttributes: attrJSON},
		})
		for _, sub := range subs {
			if !sub.Accepts(attrs) {
				continue
			}
			delivered := noteJSON
			if sub.RawDelivery {
				delivered = body
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: sub.Queue,
				Values: map[string]any{fieldBody: string(delivered), fieldAttributes: attrJSON},
			})
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("publishing to topic %s: %w", topic, err)
	}

	slog.DebugContext(ctx, "published message",
		"topic", topic,
		"message_id", note.MessageID,
		"subscriptions", len(subs))
	return note.MessageID, nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}

func toRawMessage(msg redis.XMessage, receiveCount int) RawMessage {
	return RawMessage{
		ID:            msg.ID,
		ReceiptHandle: receiptFor(msg.ID, receiveCount),
		Body:          []byte(stringValue(msg.Values, fieldBody)),
		Attributes:    decodeAttributes(stringValue(msg.Values, fieldAttributes)),
		ReceiveCount:  receiveCount,
	}
}

// A receipt is "<entry id>:<delivery count>". The group's delivery counter
// increments on every XREADGROUP and XCLAIM of the entry.
func receiptFor(id string, receiveCount int) string {
	return id + ":" + strconv.Itoa(receiveCount)
}

func parseReceipt(handle string) (string, int64, bool) {
	id, count, ok := strings.Cut(handle, ":")
	if !ok || id == "" {
		return "", 0, false
	}
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return id, n, true
}

func stringValue(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

func decodeAttributes(s string) map[string]string {
	attrs := map[string]string{}
	if s == "" {
		return attrs
	}
	// Attributes are advisory; a corrupt set must not block delivery of the body.
	_ = json.Unmarshal([]byte(s), &attrs)
	return attrs
}

func encodeAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
