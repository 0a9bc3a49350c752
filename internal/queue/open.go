package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/roster/core/config"
)

// Open connects the transport selected by cfg.Transport. name identifies the
// process to the broker and, for Redis, overrides the consumer name when set.
//
// With NATS, Queue is a durable consumer on Topic's stream, so a consuming
// process needs both.
func Open(ctx context.Context, cfg config.EventsConfig, name string) (Transport, error) {
	switch cfg.Transport {
	case config.TransportRedis:
		return openRedis(ctx, cfg, name)
	case config.TransportNATS:
		return openNATS(ctx, cfg, name)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func openRedis(ctx context.Context, cfg config.EventsConfig, name string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.ClientName = name

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = name
	}
	t, err := NewRedisTransport(ctx, client, RedisConfig{
		Queue:             cfg.Queue,
		Group:             cfg.ConsumerGroup,
		Consumer:          consumer,
		DLQ:               cfg.DeadLetterQueue(),
		VisibilityTimeout: cfg.VisibilityTimeout,
		MaxReceiveCount:   cfg.MaxReceiveCount,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	slog.InfoContext(ctx, "redis transport ready",
		"queue", cfg.Queue,
		"group", cfg.ConsumerGroup,
		"consumer", consumer)
	return t, nil
}

func openNATS(ctx context.Context, cfg config.EventsConfig, name string) (*NATSTransport, error) {
	if cfg.Topic == "" {
		return nil, errors.New("nats transport requires EVENTS_TOPIC")
	}

	conn, err := ConnectNATS(cfg.NATSURL, name)
	if err != nil {
		return nil, err
	}

	t, err := NewNATSTransport(ctx, conn, NATSConfig{
		Topic:             cfg.Topic,
		Queue:             cfg.Queue,
		VisibilityTimeout: cfg.VisibilityTimeout,
		MaxReceiveCount:   cfg.MaxReceiveCount,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	slog.InfoContext(ctx, "nats transport ready",
		"url", conn.ConnectedUrl(),
		"topic", cfg.Topic,
		"queue", cfg.Queue)
	return t, nil
}
