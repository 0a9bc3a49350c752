package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/http/handler"
	"basegraph.app/roster/internal/http/router"
	"basegraph.app/roster/internal/publisher"
	"basegraph.app/roster/internal/queue"
)

const adminAPIKey = "test-admin-key"

var _ = Describe("AdminHandler", func() {
	var (
		engine *gin.Engine
		pub    *mockPublisher
		subs   *mockSubscriptions
		dlq    *mockDeadLetters
	)

	setup := func(h *handler.AdminHandler) {
		engine = gin.New()
		router.AdminRouter(engine.Group("/admin"), h)
	}

	do := func(method, path, body string, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("X-Admin-API-Key", key)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		pub = &mockPublisher{topic: "model-events"}
		subs = &mockSubscriptions{}
		dlq = &mockDeadLetters{}
		setup(handler.NewAdminHandler(pub, subs, dlq, adminAPIKey))
	})

	Describe("RequireAdminAPIKey", func() {
		It("rejects a missing key", func() {
			w := do(http.MethodPost, "/admin/events", `{}`, "")
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts a bearer token", func() {
			req := httptest.NewRequest(http.MethodGet, "/admin/subscriptions", nil)
			req.Header.Set("Authorization", "Bearer "+adminAPIKey)
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("returns 503 when no key is configured", func() {
			setup(handler.NewAdminHandler(pub, subs, dlq, ""))

			w := do(http.MethodPost, "/admin/events", `{}`, adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("PublishEvent", func() {
		It("publishes to the requested services", func() {
			var got event.PublishRequest
			pub.publishFn = func(_ context.Context, req event.PublishRequest) (string, error) {
				got = req
				return "1700000000000-0", nil
			}

			w := do(http.MethodPost, "/admin/events",
				`{"event_type":"user_updated","data":{"user_id":1},"target_services":["selection_service"]}`,
				adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(got.EventType).To(Equal(event.UserUpdated))
			Expect(got.Targets.Resolve()).To(Equal([]string{"selection_service"}))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["message_id"]).To(Equal("1700000000000-0"))
			Expect(resp["topic"]).To(Equal("model-events"))
		})

		It("broadcasts when no targets are given", func() {
			var got event.PublishRequest
			pub.publishFn = func(_ context.Context, req event.PublishRequest) (string, error) {
				got = req
				return "1-0", nil
			}

			w := do(http.MethodPost, "/admin/events", `{"event_type":"model_created","data":{}}`, adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(got.Targets.IsBroadcast()).To(BeTrue())
		})

		It("rejects an unknown event type", func() {
			w := do(http.MethodPost, "/admin/events", `{"event_type":"order_placed","data":{}}`, adminAPIKey)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		DescribeTable("maps publish errors to status codes",
			func(err error, status int) {
				pub.publishFn = func(context.Context, event.PublishRequest) (string, error) {
					return "", err
				}

				w := do(http.MethodPost, "/admin/events", `{"event_type":"user_deleted","data":{}}`, adminAPIKey)

				Expect(w.Code).To(Equal(status))
			},
			Entry("not configured", &publisher.PublishError{Kind: publisher.NotConfigured}, http.StatusServiceUnavailable),
			Entry("transport failure", &publisher.PublishError{Kind: publisher.TransportFailure, Err: errors.New("timeout")}, http.StatusBadGateway),
		)
	})

	Describe("subscriptions", func() {
		It("defaults the topic to the publisher's", func() {
			var got queue.Subscription
			subs.subscribeFn = func(_ context.Context, sub queue.Subscription) error {
				got = sub
				return nil
			}

			w := do(http.MethodPost, "/admin/subscriptions",
				`{"queue":"selection-events","filter_policy":{"target_services":["selection_service"]}}`,
				adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(got.Topic).To(Equal("model-events"))
			Expect(got.Queue).To(Equal("selection-events"))
			Expect(got.FilterPolicy).To(HaveKeyWithValue("target_services", []string{"selection_service"}))
		})

		It("requires a queue", func() {
			w := do(http.MethodPost, "/admin/subscriptions", `{}`, adminAPIKey)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("unsubscribes by queue name", func() {
			var topic, q string
			subs.unsubscribeFn = func(_ context.Context, t, name string) error {
				topic, q = t, name
				return nil
			}

			w := do(http.MethodDelete, "/admin/subscriptions/selection-events", "", adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(topic).To(Equal("model-events"))
			Expect(q).To(Equal("selection-events"))
		})

		It("returns 501 when the transport has no fan-out", func() {
			setup(handler.NewAdminHandler(pub, nil, nil, adminAPIKey))

			w := do(http.MethodGet, "/admin/subscriptions", "", adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusNotImplemented))
		})
	})

	Describe("dead letters", func() {
		It("lists dead letters with the requested limit", func() {
			var limit int64
			dlq.deadLettersFn = func(_ context.Context, count int64) ([]queue.DeadLetter, error) {
				limit = count
				return []queue.DeadLetter{{
					ID:           "5-0",
					SourceQueue:  "user-events",
					SourceID:     "1-0",
					Body:         []byte(`{"event_type":"user_created"}`),
					ReceiveCount: 5,
					DeadAt:       time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
				}}, nil
			}

			w := do(http.MethodGet, "/admin/dlq?limit=10", "", adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(limit).To(Equal(int64(10)))
			Expect(w.Body.String()).To(ContainSubstring(`"source_queue":"user-events"`))
		})

		It("reports how many messages were redriven", func() {
			dlq.redriveFn = func(context.Context, int64) (int, error) { return 3, nil }

			w := do(http.MethodPost, "/admin/dlq/redrive", "", adminAPIKey)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{"redriven":3}`))
		})
	})
})
