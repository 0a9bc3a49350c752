package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/router"
	"basegraph.app/roster/internal/service"
)

var _ = Describe("Routes", func() {
	var (
		ctx    context.Context
		users  *memUserStore
		models *memModelStore
		r      *router.Router
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = newMemUserStore()
		models = newMemModelStore(model.ModelProfile{ID: 100, Email: "Jane@Example.com"})

		var err error
		r, err = router.New(service.Routes(
			service.NewUserEventHandler(users),
			service.NewModelLinker(models),
		))
		Expect(err).NotTo(HaveOccurred())
	})

	It("registers a chain for every event type", func() {
		Expect(r.Types()).To(ConsistOf(event.Types()))
		Expect(r.Chain(event.UserCreated)).To(Equal([]string{
			service.HandlerCreateUser,
			service.HandlerAutoLinkUser,
		}))
		Expect(r.Chain(event.UserUpdated)).To(Equal([]string{service.HandlerUpdateUser}))
		Expect(r.Chain(event.ModelCreated)).To(BeEmpty())
	})

	Describe("a model signs up", func() {
		body := []byte(`{
			"event_type": "user_created",
			"event_id": "evt-7",
			"service_name": "user_service",
			"timestamp": "2025-03-14T09:00:00Z",
			"data": {"user_id": 42, "username": "jane", "email": "jane@example.com",
			         "role_name": "model", "status": "active"}
		}`)

		It("creates the user and links the waiting profile", func() {
			env, err := event.Parse(body, time.Now())
			Expect(err).NotTo(HaveOccurred())

			out := r.Route(ctx, env)

			Expect(out.Kind).To(Equal(router.Handled))
			Expect(out.Acknowledge()).To(BeTrue())

			u, err := users.GetByID(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Username).To(Equal("jane"))

			p, err := models.GetByID(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.UserID).To(HaveValue(Equal(int64(42))))
		})

		It("is harmless when redelivered", func() {
			env, err := event.Parse(body, time.Now())
			Expect(err).NotTo(HaveOccurred())

			Expect(r.Route(ctx, env).Kind).To(Equal(router.Handled))
			Expect(r.Route(ctx, env).Kind).To(Equal(router.Handled))

			Expect(users.Count()).To(Equal(1))
			p, _ := models.GetByID(ctx, 100)
			Expect(p.UserID).To(HaveValue(Equal(int64(42))))
		})
	})

	It("stops the chain at an invalid payload and leaves it for redelivery", func() {
		env := userEnvelope(event.UserCreated, map[string]any{"user_id": 42})

		out := r.Route(ctx, env)

		Expect(out.Kind).To(Equal(router.HandlerFailed))
		Expect(out.Handler).To(Equal(service.HandlerCreateUser))
		Expect(out.Acknowledge()).To(BeFalse())
		Expect(users.Count()).To(BeZero())
	})

	It("acknowledges user_deleted without side effects", func() {
		out := r.Route(ctx, userEnvelope(event.UserDeleted, map[string]any{"user_id": 42}))

		Expect(out.Kind).To(Equal(router.Handled))
	})
})
