package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roster/common/id"
	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/service"
	"basegraph.app/roster/internal/store"
)

var _ = Describe("ModelService", func() {
	var (
		ctx    context.Context
		models *mockModelStore
		pub    *mockPublisher
		svc    service.ModelService
	)

	BeforeEach(func() {
		ctx = context.Background()
		models = &mockModelStore{}
		pub = &mockPublisher{configured: true}
		Expect(id.Init(1)).To(Succeed())
		svc = service.NewModelService(models, pub)
	})

	Describe("Create", func() {
		params := service.CreateModelParams{
			FirstName: "Jane",
			LastName:  "Doe",
			Email:     "  Jane@Example.com ",
		}

		It("persists the profile and publishes model_created to its mirrors", func() {
			var stored *model.ModelProfile
			models.createFn = func(_ context.Context, m *model.ModelProfile) error {
				stored = m
				return nil
			}

			m, err := svc.Create(ctx, params)

			Expect(err).NotTo(HaveOccurred())
			Expect(stored).NotTo(BeNil())
			Expect(m.ID).NotTo(BeZero())
			Expect(m.Email).To(Equal("jane@example.com"))
			Expect(m.Status).To(Equal("active"))

			Expect(pub.requests).To(HaveLen(1))
			req := pub.requests[0]
			Expect(req.EventType).To(Equal(event.ModelCreated))
			Expect(req.SourceService).To(Equal("model_management"))
			Expect(req.Targets.Resolve()).To(Equal([]string{"user_service", "selection_service"}))
			Expect(req.Payload).To(HaveKeyWithValue("id", m.ID))
			Expect(req.Payload).To(HaveKeyWithValue("email", "jane@example.com"))
			Expect(req.Payload).To(HaveKeyWithValue("user_id", BeNil()))
			Expect(req.Payload).NotTo(HaveKey("updated_fields"))
		})

		It("does not publish when the write fails", func() {
			models.createFn = func(context.Context, *model.ModelProfile) error {
				return errors.New("disk full")
			}

			_, err := svc.Create(ctx, params)

			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(pub.requests).To(BeEmpty())
		})

		It("keeps the write when publishing fails", func() {
			pub.publishFn = func(context.Context, event.PublishRequest) (string, error) {
				return "", errors.New("topic unreachable")
			}

			m, err := svc.Create(ctx, params)

			Expect(err).NotTo(HaveOccurred())
			Expect(m).NotTo(BeNil())
		})

		It("skips publishing when the publisher is not configured", func() {
			pub.configured = false

			_, err := svc.Create(ctx, params)

			Expect(err).NotTo(HaveOccurred())
			Expect(pub.requests).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		BeforeEach(func() {
			models.getByIDFn = func(_ context.Context, modelID int64) (*model.ModelProfile, error) {
				return &model.ModelProfile{
					ID:        modelID,
					FirstName: "Jane",
					LastName:  "Doe",
					Email:     "jane@example.com",
					Status:    "active",
				}, nil
			}
		})

		It("publishes model_updated with the changed field names", func() {
			m, err := svc.Update(ctx, 100, service.UpdateModelParams{
				LastName:   ptr("Smith"),
				FirstName:  ptr("Jane"),
				IsFeatured: ptr(true),
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(m.LastName).To(Equal("Smith"))
			Expect(pub.requests).To(HaveLen(1))
			Expect(pub.requests[0].EventType).To(Equal(event.ModelUpdated))
			Expect(pub.requests[0].Payload["updated_fields"]).To(Equal([]string{"last_name", "is_featured"}))
		})

		It("neither writes nor publishes when nothing changed", func() {
			updates := 0
			models.updateFn = func(context.Context, *model.ModelProfile) error {
				updates++
				return nil
			}

			_, err := svc.Update(ctx, 100, service.UpdateModelParams{FirstName: ptr("Jane")})

			Expect(err).NotTo(HaveOccurred())
			Expect(updates).To(Equal(0))
			Expect(pub.requests).To(BeEmpty())
		})

		It("reports a missing profile as not found", func() {
			models.getByIDFn = nil

			_, err := svc.Update(ctx, 100, service.UpdateModelParams{LastName: ptr("Smith")})

			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(service.IsNotFound(err)).To(BeTrue())
		})
	})
})
