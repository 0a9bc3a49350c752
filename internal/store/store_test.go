package store_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/store"
)

var _ = Describe("Stores", func() {
	var (
		ctx context.Context
		db  *fakeDB
		s   *store.Stores
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = &fakeDB{}
		s = store.NewStores(db)
	})

	It("reports a missing row as ErrNotFound", func() {
		db.row = fakeRow{err: pgx.ErrNoRows}

		_, err := s.Users().GetByID(ctx, 42)

		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("reports a unique violation as ErrConflict and keeps the driver error", func() {
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
		db.row = fakeRow{err: pgErr}

		err := s.Users().Create(ctx, &model.User{ID: 42, Username: "jane"})

		Expect(err).To(MatchError(store.ErrConflict))
		var got *pgconn.PgError
		Expect(errors.As(err, &got)).To(BeTrue())
		Expect(got.ConstraintName).To(Equal("users_username_key"))
	})

	It("passes other errors through", func() {
		db.row = fakeRow{err: errors.New("conn closed")}

		_, err := s.Models().FindByEmail(ctx, "jane@example.com")

		Expect(err).To(MatchError("conn closed"))
		Expect(errors.Is(err, store.ErrNotFound)).To(BeFalse())
	})

	Describe("LinkUser", func() {
		It("only touches unlinked profiles", func() {
			db.tag = pgconn.NewCommandTag("UPDATE 1")

			linked, err := s.Models().LinkUser(ctx, 100, 42)

			Expect(err).NotTo(HaveOccurred())
			Expect(linked).To(BeTrue())
			Expect(db.lastSQL).To(ContainSubstring("user_id IS NULL"))
		})

		It("reports false when the profile was already linked", func() {
			db.tag = pgconn.NewCommandTag("UPDATE 0")

			linked, err := s.Models().LinkUser(ctx, 100, 42)

			Expect(err).NotTo(HaveOccurred())
			Expect(linked).To(BeFalse())
		})
	})
})
