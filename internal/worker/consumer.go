package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/roster/common/logger"
	"basegraph.app/roster/common/metrics"
	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/queue"
	"basegraph.app/roster/internal/router"
)

var ErrAlreadyRunning = errors.New("consumer already running")

type State int32

const (
	Stopped State = iota
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return "stopped"
	}
}

type Config struct {
	MaxMessages  int
	WaitTime     time.Duration
	IdleDelay    time.Duration // sleep after an empty batch
	ErrorBackoff time.Duration // sleep after a failed receive

	// Now is the clock handed to the parser. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxMessages <= 0 {
		c.MaxMessages = 10
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Consumer is the poll loop: it receives batches from a transport, parses
// and routes each message, and deletes the ones that were handled. Messages
// that fail are left on the queue for the transport to redeliver.
type Consumer struct {
	transport Transport
	router    Router
	cfg       Config

	mu        sync.Mutex
	state     State
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(transport Transport, r Router, cfg Config) *Consumer {
	return &Consumer{
		transport: transport,
		router:    r,
		cfg:       cfg.withDefaults(),
		state:     Stopped,
	}
}

func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the poll loop on its own goroutine.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Stopped {
		return ErrAlreadyRunning
	}

	c.state = Running
	c.stopCh = make(chan struct{})
	c.stoppedCh = make(chan struct{})
	go c.run(ctx, c.stopCh, c.stoppedCh)
	return nil
}

// Stop asks the loop to exit after the batch in progress and blocks until
// it has. Calling Stop on a stopped consumer does nothing.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return
	}
	if c.state == Running {
		c.state = Draining
		close(c.stopCh)
	}
	stoppedCh := c.stoppedCh
	c.mu.Unlock()

	<-stoppedCh
}

func (c *Consumer) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "roster.worker.consumer",
	})

	defer func() {
		c.mu.Lock()
		c.state = Stopped
		c.mu.Unlock()
		close(stoppedCh)
		slog.InfoContext(ctx, "consumer stopped")
	}()

	slog.InfoContext(ctx, "consumer started",
		"max_messages", c.cfg.MaxMessages,
		"wait_time", c.cfg.WaitTime)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			slog.InfoContext(ctx, "consumer stopping")
			return
		default:
		}

		delay := c.pollOnce(ctx)
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			slog.InfoContext(ctx, "consumer stopping")
			return
		case <-timer.C:
		}
	}
}

// pollOnce runs one receive-and-process iteration and returns how long to
// sleep before the next one.
func (c *Consumer) pollOnce(ctx context.Context) time.Duration {
	messages, err := c.receiveSafe(ctx)
	if err != nil {
		metrics.PollErrors.Inc()
		slog.ErrorContext(ctx, "failed to receive messages", "error", err)
		return c.cfg.ErrorBackoff
	}
	if len(messages) == 0 {
		return c.cfg.IdleDelay
	}

	metrics.MessagesReceived.Add(float64(len(messages)))
	c.ProcessBatch(ctx, messages)
	return 0
}

func (c *Consumer) receiveSafe(ctx context.Context) (messages []queue.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			messages = nil
			err = fmt.Errorf("panic in receive: %v", r)
		}
	}()
	return c.transport.Receive(ctx, c.cfg.MaxMessages, c.cfg.WaitTime)
}

// ProcessBatch handles messages sequentially in receive order. A failure
// on one message never affects the others.
func (c *Consumer) ProcessBatch(ctx context.Context, messages []queue.RawMessage) {
	for _, msg := range messages {
		c.processMessageSafe(ctx, msg)
	}
}

// processMessageSafe keeps a panic anywhere in parse, routing, or delete
// from reaching the rest of the batch. The message is left for redelivery.
func (c *Consumer) processMessageSafe(ctx context.Context, msg queue.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MessageOutcomes.WithLabelValues("", string(router.UnexpectedError)).Inc()
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"receive_count", msg.ReceiveCount)
		}
	}()
	c.processMessage(ctx, msg)
}

func (c *Consumer) processMessage(ctx context.Context, msg queue.RawMessage) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
	})

	env, err := event.Parse(msg.Body, c.cfg.Now())
	if err != nil {
		metrics.MessageOutcomes.WithLabelValues("", metrics.OutcomeParseError).Inc()
		slog.WarnContext(ctx, "dropping unparseable message",
			"error", err,
			"receive_count", msg.ReceiveCount,
			"body", logger.Truncate(string(msg.Body), 512))
		c.delete(ctx, msg)
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:       logger.Ptr(env.ID()),
		EventType:     logger.Ptr(string(env.Type())),
		SourceService: logger.Ptr(env.SourceService()),
	})

	sc := logger.StartSpanFromTraceID(ctx, env.TraceID(), "worker.process_event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", msg.ID),
			attribute.String("event.type", string(env.Type())),
			attribute.String("event.id", env.ID()),
			attribute.Int("messaging.receive_count", msg.ReceiveCount),
		),
	)
	defer sc.End()
	ctx = sc.Context()

	start := time.Now()
	out := c.routeSafe(ctx, env)
	metrics.ProcessingDuration.WithLabelValues(string(env.Type())).Observe(time.Since(start).Seconds())
	metrics.MessageOutcomes.WithLabelValues(string(env.Type()), string(out.Kind)).Inc()

	switch out.Kind {
	case router.Handled:
		slog.InfoContext(ctx, "event handled",
			"duration_ms", time.Since(start).Milliseconds())
		c.delete(ctx, msg)
	case router.HandlerFailed:
		sc.Span().SetStatus(codes.Error, out.Detail)
		slog.ErrorContext(ctx, "handler failed, leaving message for redelivery",
			"handler", out.Handler,
			"reason", out.Detail,
			"receive_count", msg.ReceiveCount)
	default:
		sc.RecordError(out.Err)
		sc.Span().SetStatus(codes.Error, out.Detail)
		slog.ErrorContext(ctx, "unexpected error handling event, leaving message for redelivery",
			"error", out.Err,
			"handler", out.Handler,
			"receive_count", msg.ReceiveCount)
	}
}

// routeSafe turns a panic anywhere in the handler chain into an
// UnexpectedError outcome.
func (c *Consumer) routeSafe(ctx context.Context, env event.Envelope) (out router.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			slog.ErrorContext(ctx, "panic recovered in event handling", "panic", r)
			out = router.Outcome{Kind: router.UnexpectedError, Detail: err.Error(), Err: err}
		}
	}()
	return c.router.Route(ctx, env)
}

func (c *Consumer) delete(ctx context.Context, msg queue.RawMessage) {
	if err := c.transport.Delete(ctx, msg.ReceiptHandle); err != nil {
		// The message will be redelivered; handlers are idempotent.
		metrics.DeleteErrors.Inc()
		slog.WarnContext(ctx, "failed to delete message",
			"error", err,
			"receipt_handle", msg.ReceiptHandle)
	}
}
