// Package queue adapts message brokers to the receive/delete/publish contract
// the poll loop and publisher depend on.
package queue

import (
	"context"
	"errors"
	"time"
)

// Message attribute names set by the publisher and matched by subscription
// filter policies.
const (
	AttrEventType      = "event_type"
	AttrEventID        = "event_id"
	AttrSourceService  = "source_service"
	AttrTargetServices = "target_services"
	AttrGroupID        = "group_id"
)

var (
	ErrNoQueue        = errors.New("transport has no source queue configured")
	ErrUnknownReceipt = errors.New("unknown or expired receipt handle")
)

// RawMessage is one delivery of a queued message. It is owned by the poll
// loop for a single processing attempt and is either deleted through its
// ReceiptHandle or left alone for redelivery.
type RawMessage struct {
	ID            string
	ReceiptHandle string
	Body          []byte
	Attributes    map[string]string
	// ReceiveCount is how many times this message has been delivered,
	// including this delivery.
	ReceiveCount int
}

// Transport is a queue that can be polled and a topic that can be published to.
type Transport interface {
	// Receive waits up to wait for at most max messages. An empty result
	// is not an error. Messages received and not deleted become visible
	// again after the transport's visibility timeout.
	Receive(ctx context.Context, max int, wait time.Duration) ([]RawMessage, error)

	// Delete acknowledges a message so it is never redelivered.
	Delete(ctx context.Context, receiptHandle string) error

	// Publish sends body to topic and returns the broker-assigned message ID.
	Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) (string, error)

	Close() error
}
