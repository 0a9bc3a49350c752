package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/http/dto"
	"basegraph.app/roster/internal/publisher"
	"basegraph.app/roster/internal/queue"
)

type EventPublisher interface {
	Topic() string
	Publish(ctx context.Context, req event.PublishRequest) (string, error)
}

// Subscriptions manages topic fan-out. Only the Redis transport has one.
type Subscriptions interface {
	Subscribe(ctx context.Context, sub queue.Subscription) error
	Unsubscribe(ctx context.Context, topic, queue string) error
	Subscriptions(ctx context.Context, topic string) ([]queue.Subscription, error)
}

type DeadLetters interface {
	DeadLetters(ctx context.Context, count int64) ([]queue.DeadLetter, error)
	Redrive(ctx context.Context, count int64) (int, error)
}

// AdminHandler serves the operator endpoints. subs and dlq are nil when the
// transport does not support them.
type AdminHandler struct {
	publisher   EventPublisher
	subs        Subscriptions
	dlq         DeadLetters
	adminAPIKey string
}

func NewAdminHandler(pub EventPublisher, subs Subscriptions, dlq DeadLetters, adminAPIKey string) *AdminHandler {
	return &AdminHandler{
		publisher:   pub,
		subs:        subs,
		dlq:         dlq,
		adminAPIKey: adminAPIKey,
	}
}

// PublishEvent publishes an arbitrary event (admin only)
func (h *AdminHandler) PublishEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	eventType := event.Type(req.EventType)
	if !eventType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type", "event_type": req.EventType})
		return
	}

	targets := make([]event.Service, len(req.TargetServices))
	for i, s := range req.TargetServices {
		targets[i] = event.Service(s)
	}

	messageID, err := h.publisher.Publish(ctx, event.PublishRequest{
		EventType:     eventType,
		Payload:       req.Data,
		SourceService: req.SourceService,
		Targets:       event.To(targets...),
		GroupID:       req.GroupID,
	})
	if err != nil {
		if publisher.IsKind(err, publisher.NotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event publishing not configured"})
			return
		}
		slog.ErrorContext(ctx, "failed to publish event via admin API", "error", err, "event_type", eventType)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to publish event"})
		return
	}

	slog.InfoContext(ctx, "event published via admin API",
		"event_type", eventType,
		"message_id", messageID)

	c.JSON(http.StatusAccepted, dto.PublishEventResponse{
		MessageID: messageID,
		Topic:     h.publisher.Topic(),
	})
}

// Subscribe adds or replaces a fan-out subscription (admin only)
func (h *AdminHandler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()
	if h.subs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "transport does not support subscriptions"})
		return
	}

	var req dto.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: queue is required"})
		return
	}

	sub := queue.Subscription{
		Topic:        h.topicOr(req.Topic),
		Queue:        req.Queue,
		FilterPolicy: req.FilterPolicy,
		RawDelivery:  req.RawDelivery,
	}
	if sub.Topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	if err := h.subs.Subscribe(ctx, sub); err != nil {
		slog.ErrorContext(ctx, "failed to subscribe queue", "error", err, "topic", sub.Topic, "queue", sub.Queue)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}

	slog.InfoContext(ctx, "subscription saved via admin API",
		"topic", sub.Topic,
		"queue", sub.Queue,
		"raw_delivery", sub.RawDelivery)

	c.JSON(http.StatusCreated, sub)
}

// ListSubscriptions lists the subscriptions of a topic (admin only)
func (h *AdminHandler) ListSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()
	if h.subs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "transport does not support subscriptions"})
		return
	}

	topic := h.topicOr(c.Query("topic"))
	subs, err := h.subs.Subscriptions(ctx, topic)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list subscriptions", "error", err, "topic", topic)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []queue.Subscription{}
	}

	c.JSON(http.StatusOK, gin.H{"topic": topic, "subscriptions": subs})
}

// Unsubscribe removes a queue's subscription (admin only)
func (h *AdminHandler) Unsubscribe(c *gin.Context) {
	ctx := c.Request.Context()
	if h.subs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "transport does not support subscriptions"})
		return
	}

	topic := h.topicOr(c.Query("topic"))
	queueName := c.Param("queue")
	if err := h.subs.Unsubscribe(ctx, topic, queueName); err != nil {
		slog.ErrorContext(ctx, "failed to unsubscribe queue", "error", err, "topic", topic, "queue", queueName)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListDeadLetters returns the oldest dead-lettered messages (admin only)
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	ctx := c.Request.Context()
	if h.dlq == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "transport does not expose a dead-letter queue"})
		return
	}

	letters, err := h.dlq.DeadLetters(ctx, queryLimit(c, 50))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list dead letters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead letters"})
		return
	}

	resp := make([]dto.DeadLetterResponse, len(letters))
	for i, dl := range letters {
		resp[i] = dto.DeadLetterResponse{
			ID:           dl.ID,
			SourceQueue:  dl.SourceQueue,
			SourceID:     dl.SourceID,
			Body:         string(dl.Body),
			Attributes:   dl.Attributes,
			ReceiveCount: dl.ReceiveCount,
			DeadAt:       dl.DeadAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"dead_letters": resp})
}

// Redrive moves dead-lettered messages back to their source queue (admin only)
func (h *AdminHandler) Redrive(c *gin.Context) {
	ctx := c.Request.Context()
	if h.dlq == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "transport does not expose a dead-letter queue"})
		return
	}

	n, err := h.dlq.Redrive(ctx, queryLimit(c, 100))
	if err != nil {
		slog.ErrorContext(ctx, "failed to redrive dead letters", "error", err, "redriven", n)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to redrive dead letters", "redriven": n})
		return
	}

	slog.InfoContext(ctx, "dead letters redriven via admin API", "redriven", n)
	c.JSON(http.StatusOK, dto.RedriveResponse{Redriven: n})
}

// RequireAdminAPIKey middleware checks for valid admin API key
func (h *AdminHandler) RequireAdminAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminAPIKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin API not configured"})
			c.Abort()
			return
		}

		apiKey := c.GetHeader("X-Admin-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}

		if apiKey != h.adminAPIKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (h *AdminHandler) topicOr(topic string) string {
	if topic != "" || h.publisher == nil {
		return topic
	}
	return h.publisher.Topic()
}

func queryLimit(c *gin.Context, fallback int64) int64 {
	n, err := strconv.ParseInt(c.Query("limit"), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
