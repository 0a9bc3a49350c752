package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type NATSConfig struct {
	// Topic is both the stream name and the subject prefix; events are
	// published to "<topic>.<event_type>".
	Topic string

	// Queue is the durable pull consumer on Topic's stream. Empty for
	// publish-only processes.
	Queue string

	VisibilityTimeout time.Duration // maps to AckWait
	MaxReceiveCount   int           // maps to MaxDeliver
}

// NATSTransport implements Transport on NATS JetStream. Messages are
// delivered unwrapped with their attributes as headers.
type NATSTransport struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	cfg      NATSConfig

	mu       sync.Mutex
	inflight map[string]jetstream.Msg
}

var _ Transport = (*NATSTransport)(nil)

func NewNATSTransport(ctx context.Context, conn *nats.Conn, cfg NATSConfig) (*NATSTransport, error) {
	if cfg.Topic == "" {
		return nil, errors.New("nats transport needs a topic")
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.MaxReceiveCount <= 0 {
		cfg.MaxReceiveCount = 5
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	streamName := natsStreamName(cfg.Topic)
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{cfg.Topic + ".>"},
		Retention: jetstream.InterestPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", streamName, err)
	}

	t := &NATSTransport{
		conn:     conn,
		js:       js,
		cfg:      cfg,
		inflight: make(map[string]jetstream.Msg),
	}

	if cfg.Queue != "" {
		t.consumer, err = stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Name:       cfg.Queue,
			Durable:    cfg.Queue,
			AckPolicy:  jetstream.AckExplicitPolicy,
			AckWait:    cfg.VisibilityTimeout,
			MaxDeliver: cfg.MaxReceiveCount,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Queue, err)
		}
	}
	return t, nil
}

// natsStreamName derives a stream name from a topic; stream names may not
// contain dots.
func natsStreamName(topic string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(topic))
}

func (t *NATSTransport) Receive(ctx context.Context, max int, wait time.Duration) ([]RawMessage, error) {
	if t.consumer == nil {
		return nil, ErrNoQueue
	}

	// Handles from the previous batch that were never deleted are abandoned;
	// JetStream redelivers those messages after AckWait under a new handle.
	t.mu.Lock()
	clear(t.inflight)
	t.mu.Unlock()

	var (
		batch jetstream.MessageBatch
		err   error
	)
	if wait <= 0 {
		batch, err = t.consumer.FetchNoWait(max)
	} else {
		batch, err = t.consumer.Fetch(max, jetstream.FetchMaxWait(wait))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var messages []RawMessage
	for msg := range batch.Messages() {
		messages = append(messages, t.track(msg))
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		// Messages already fetched are still handed out; they will be redelivered if unacked.
		if len(messages) == 0 {
			return nil, fmt.Errorf("fetch messages: %w", err)
		}
		slog.WarnContext(ctx, "fetch completed with error", "error", err, "count", len(messages))
	}
	return messages, nil
}

func (t *NATSTransport) track(msg jetstream.Msg) RawMessage {
	attrs := make(map[string]string)
	for k := range msg.Headers() {
		attrs[k] = msg.Headers().Get(k)
	}

	id := msg.Headers().Get(nats.MsgIdHdr)
	receiveCount := 1
	if meta, err := msg.Metadata(); err == nil {
		receiveCount = int(meta.NumDelivered)
		if id == "" {
			id = strconv.FormatUint(meta.Sequence.Stream, 10)
		}
	}

	// The reply subject is unique per delivery, so it doubles as the receipt handle.
	handle := msg.Reply()
	t.mu.Lock()
	t.inflight[handle] = msg
	t.mu.Unlock()

	return RawMessage{
		ID:            id,
		ReceiptHandle: handle,
		Body:          msg.Data(),
		Attributes:    attrs,
		ReceiveCount:  receiveCount,
	}
}

func (t *NATSTransport) Delete(ctx context.Context, receiptHandle string) error {
	t.mu.Lock()
	msg, ok := t.inflight[receiptHandle]
	delete(t.inflight, receiptHandle)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReceipt, receiptHandle)
	}

	if err := msg.DoubleAck(ctx); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func (t *NATSTransport) Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) (string, error) {
	eventType := attrs[AttrEventType]
	if eventType == "" {
		eventType = "unknown"
	}

	msg := &nats.Msg{
		Subject: topic + "." + eventType,
		Data:    body,
		Header:  nats.Header{},
	}
	for k, v := range attrs {
		msg.Header.Set(k, v)
	}

	var opts []jetstream.PublishOpt
	if id := attrs[AttrEventID]; id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}

	ack, err := t.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return "", fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}
	if ack.Duplicate {
		slog.DebugContext(ctx, "duplicate publish suppressed", "subject", msg.Subject, "sequence", ack.Sequence)
	}
	return strconv.FormatUint(ack.Sequence, 10), nil
}

func (t *NATSTransport) Close() error {
	t.conn.Close()
	return nil
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
