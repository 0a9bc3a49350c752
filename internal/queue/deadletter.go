package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadLetter is a message that exceeded the queue's receive limit.
type DeadLetter struct {
	ID           string
	SourceQueue  string
	SourceID     string
	Body         []byte
	Attributes   map[string]string
	ReceiveCount int
	DeadAt       time.Time
}

// DeadLetters returns up to count of the oldest entries in the dead-letter stream.
func (t *RedisTransport) DeadLetters(ctx context.Context, count int64) ([]DeadLetter, error) {
	if t.cfg.DLQ == "" {
		return nil, ErrNoQueue
	}
	entries, err := t.client.XRangeN(ctx, t.cfg.DLQ, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange dlq (stream=%s): %w", t.cfg.DLQ, err)
	}

	letters := make([]DeadLetter, 0, len(entries))
	for _, e := range entries {
		letters = append(letters, toDeadLetter(e))
	}
	return letters, nil
}

// Redrive moves up to count dead letters back onto the source queue as fresh
// messages, oldest first. It returns how many were moved.
func (t *RedisTransport) Redrive(ctx context.Context, count int64) (int, error) {
	letters, err := t.DeadLetters(ctx, count)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, dl := range letters {
		target := dl.SourceQueue
		if target == "" {
			target = t.cfg.Queue
		}
		_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: target,
				Values: map[string]any{
					fieldBody:       string(dl.Body),
					fieldAttributes: encodeAttributes(dl.Attributes),
				},
			})
			pipe.XDel(ctx, t.cfg.DLQ, dl.ID)
			return nil
		})
		if err != nil {
			return moved, fmt.Errorf("redriving %s: %w", dl.ID, err)
		}
		moved++
		slog.InfoContext(ctx, "redrove dead letter",
			"dead_letter_id", dl.ID,
			"queue", target)
	}
	return moved, nil
}

func toDeadLetter(msg redis.XMessage) DeadLetter {
	receiveCount, _ := strconv.Atoi(stringValue(msg.Values, fieldReceive))
	deadAt, _ := time.Parse(time.RFC3339Nano, stringValue(msg.Values, fieldDeadAt))
	return DeadLetter{
		ID:           msg.ID,
		SourceQueue:  stringValue(msg.Values, fieldSourceQueue),
		SourceID:     stringValue(msg.Values, fieldSourceID),
		Body:         []byte(stringValue(msg.Values, fieldBody)),
		Attributes:   decodeAttributes(stringValue(msg.Values, fieldAttributes)),
		ReceiveCount: receiveCount,
		DeadAt:       deadAt,
	}
}
