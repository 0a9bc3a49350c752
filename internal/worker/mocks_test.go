package worker_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/queue"
	"basegraph.app/roster/internal/router"
)

type mockTransport struct {
	receiveFn func(ctx context.Context, max int, wait time.Duration) ([]queue.RawMessage, error)
	deleteFn  func(ctx context.Context, receiptHandle string) error

	mu       sync.Mutex
	receives int
	deleted  []string
}

func (m *mockTransport) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.RawMessage, error) {
	m.mu.Lock()
	m.receives++
	m.mu.Unlock()
	if m.receiveFn != nil {
		return m.receiveFn(ctx, max, wait)
	}
	return nil, nil
}

func (m *mockTransport) Delete(ctx context.Context, receiptHandle string) error {
	if m.deleteFn != nil {
		if err := m.deleteFn(ctx, receiptHandle); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.deleted = append(m.deleted, receiptHandle)
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *mockTransport) Receives() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receives
}

type mockRouter struct {
	routeFn func(ctx context.Context, env event.Envelope) router.Outcome

	mu     sync.Mutex
	routed []string
}

func (m *mockRouter) Route(ctx context.Context, env event.Envelope) router.Outcome {
	m.mu.Lock()
	m.routed = append(m.routed, env.ID())
	m.mu.Unlock()
	if m.routeFn != nil {
		return m.routeFn(ctx, env)
	}
	return router.Outcome{Kind: router.Handled}
}

func (m *mockRouter) Routed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.routed...)
}

func rawEvent(eventType event.Type, eventID string) queue.RawMessage {
	return queue.RawMessage{
		ID:            "msg-" + eventID,
		ReceiptHandle: "rh-" + eventID,
		Body: []byte(fmt.Sprintf(
			`{"event_type":%q,"event_id":%q,"service_name":"user_service","timestamp":"2025-03-14T09:00:00Z","data":{"user_id":1}}`,
			eventType, eventID)),
		ReceiveCount: 1,
	}
}

func rawBody(id, body string) queue.RawMessage {
	return queue.RawMessage{ID: "msg-" + id, ReceiptHandle: "rh-" + id, Body: []byte(body), ReceiveCount: 1}
}
