package worker

import (
	"context"
	"time"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/queue"
	"basegraph.app/roster/internal/router"
)

// Transport is the part of queue.Transport the poll loop needs.
type Transport interface {
	Receive(ctx context.Context, max int, wait time.Duration) ([]queue.RawMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Router abstracts event dispatch for testability.
type Router interface {
	Route(ctx context.Context, env event.Envelope) router.Outcome
}
