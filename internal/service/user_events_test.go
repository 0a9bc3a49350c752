package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/service"
	"basegraph.app/roster/internal/store"
)

var _ = Describe("UserEventHandler", func() {
	var (
		ctx   context.Context
		users *mockUserStore
		h     service.UserEventHandler
	)

	validPayload := func() map[string]any {
		return map[string]any{
			"user_id":   42,
			"username":  "jane",
			"email":     "jane@example.com",
			"role_name": "model",
			"status":    "active",
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		users = &mockUserStore{}
		h = service.NewUserEventHandler(users)
	})

	Describe("CreateFromEvent", func() {
		It("creates the user from the payload", func() {
			var created *model.User
			users.createFn = func(_ context.Context, u *model.User) error {
				created = u
				return nil
			}

			res, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, validPayload()))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(created).NotTo(BeNil())
			Expect(created.ID).To(Equal(int64(42)))
			Expect(created.Username).To(Equal("jane"))
			Expect(*created.Email).To(Equal("jane@example.com"))
			Expect(created.RoleName).To(Equal("model"))
		})

		It("accepts a numeric string user_id", func() {
			payload := validPayload()
			payload["user_id"] = "9007199254740993"
			var created *model.User
			users.createFn = func(_ context.Context, u *model.User) error {
				created = u
				return nil
			}

			res, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, payload))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(created.ID).To(Equal(int64(9007199254740993)))
		})

		It("parses the temporary picture expiry leniently", func() {
			payload := validPayload()
			payload["temporary_profile_picture_expires_at"] = "2025-03-14T10:00:00"
			var created *model.User
			users.createFn = func(_ context.Context, u *model.User) error {
				created = u
				return nil
			}

			_, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, payload))

			Expect(err).NotTo(HaveOccurred())
			Expect(created.TemporaryProfilePictureExpiresAt).NotTo(BeNil())
			Expect(created.TemporaryProfilePictureExpiresAt.Hour()).To(Equal(10))
		})

		It("succeeds without writing when the user already exists by id", func() {
			users.getByIDFn = func(_ context.Context, id int64) (*model.User, error) {
				return &model.User{ID: id, Username: "jane"}, nil
			}

			res, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, validPayload()))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(users.createCalls).To(Equal(0))
		})

		It("succeeds without writing when the username is taken", func() {
			users.getByUsernameFn = func(_ context.Context, username string) (*model.User, error) {
				return &model.User{ID: 7, Username: username}, nil
			}

			res, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, validPayload()))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(users.createCalls).To(Equal(0))
		})

		It("treats a unique violation on insert as already created", func() {
			users.createFn = func(context.Context, *model.User) error {
				return store.ErrConflict
			}

			res, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, validPayload()))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
		})

		It("returns store errors as unexpected", func() {
			users.getByIDFn = func(context.Context, int64) (*model.User, error) {
				return nil, errors.New("connection refused")
			}

			_, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, validPayload()))

			Expect(err).To(MatchError(ContainSubstring("connection refused")))
		})

		DescribeTable("fails payloads that can never be processed",
			func(mutate func(map[string]any), reason string) {
				payload := validPayload()
				mutate(payload)

				res, err := h.CreateFromEvent(ctx, userEnvelope(event.UserCreated, payload))

				Expect(err).NotTo(HaveOccurred())
				Expect(res.OK()).To(BeFalse())
				Expect(res.Reason()).To(ContainSubstring(reason))
				Expect(users.createCalls).To(Equal(0))
			},
			Entry("missing user_id", func(p map[string]any) { delete(p, "user_id") }, "user_id is required"),
			Entry("missing username", func(p map[string]any) { delete(p, "username") }, "username is required"),
			Entry("missing role", func(p map[string]any) { delete(p, "role_name") }, "role_name is required"),
			Entry("missing status", func(p map[string]any) { delete(p, "status") }, "status is required"),
			Entry("bad email", func(p map[string]any) { p["email"] = "not-an-email" }, "email must be a valid email"),
			Entry("fractional user_id", func(p map[string]any) { p["user_id"] = 4.5 }, "user_id must be an integer"),
			Entry("wrong type", func(p map[string]any) { p["username"] = 12 }, "invalid payload"),
		)
	})

	Describe("UpdateFromEvent", func() {
		var existing *model.User

		BeforeEach(func() {
			existing = &model.User{
				ID:       42,
				Username: "jane",
				Email:    ptr("old@example.com"),
				Name:     ptr("Jane"),
				RoleName: "model",
				Status:   "active",
			}
			users.getByIDFn = func(context.Context, int64) (*model.User, error) {
				u := *existing
				return &u, nil
			}
		})

		It("applies only the fields present in the payload", func() {
			var updated *model.User
			users.updateFn = func(_ context.Context, u *model.User) error {
				updated = u
				return nil
			}
			payload := validPayload()
			payload["status"] = "suspended"

			res, err := h.UpdateFromEvent(ctx, userEnvelope(event.UserUpdated, payload))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(updated.Status).To(Equal("suspended"))
			Expect(*updated.Email).To(Equal("jane@example.com"))
			Expect(*updated.Name).To(Equal("Jane"))
		})

		It("skips the write when nothing changed", func() {
			existing.Email = ptr("jane@example.com")

			res, err := h.UpdateFromEvent(ctx, userEnvelope(event.UserUpdated, validPayload()))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(users.updateCalls).To(Equal(0))
		})

		It("creates the user when the update arrives first", func() {
			users.getByIDFn = nil

			res, err := h.UpdateFromEvent(ctx, userEnvelope(event.UserUpdated, validPayload()))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(users.createCalls).To(Equal(1))
			Expect(users.updateCalls).To(Equal(0))
		})

		It("returns update errors as unexpected", func() {
			users.updateFn = func(context.Context, *model.User) error {
				return errors.New("deadlock detected")
			}

			_, err := h.UpdateFromEvent(ctx, userEnvelope(event.UserUpdated, validPayload()))

			Expect(err).To(MatchError(ContainSubstring("deadlock detected")))
		})

		It("fails an invalid payload", func() {
			res, err := h.UpdateFromEvent(ctx, userEnvelope(event.UserUpdated, map[string]any{"user_id": 42}))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeFalse())
			Expect(res.Reason()).To(ContainSubstring("username is required"))
		})
	})
})
