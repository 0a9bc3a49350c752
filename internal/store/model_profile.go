package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/roster/core/db"
	"basegraph.app/roster/internal/model"
)

type modelStore struct {
	conn db.DBTX
}

func newModelStore(conn db.DBTX) ModelStore {
	return &modelStore{conn: conn}
}

const modelColumns = `id, user_id, first_name, last_name, email, phone, status,
	visibility_status, is_approved, is_featured, created_at, updated_at`

func (s *modelStore) GetByID(ctx context.Context, id int64) (*model.ModelProfile, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE id = $1`, id)
	return scanModel(row)
}

func (s *modelStore) FindByEmail(ctx context.Context, email string) (*model.ModelProfile, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+modelColumns+` FROM models
		WHERE lower(email) = lower($1)
		ORDER BY (user_id IS NULL) DESC, id
		LIMIT 1`, email)
	return scanModel(row)
}

func (s *modelStore) Create(ctx context.Context, m *model.ModelProfile) error {
	row := s.conn.QueryRow(ctx, `
		INSERT INTO models (id, user_id, first_name, last_name, email, phone, status,
			visibility_status, is_approved, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+modelColumns,
		m.ID, m.UserID, m.FirstName, m.LastName, m.Email, m.Phone, m.Status,
		m.VisibilityStatus, m.IsApproved, m.IsFeatured,
	)
	created, err := scanModel(row)
	if err != nil {
		return err
	}
	*m = *created
	return nil
}

func (s *modelStore) Update(ctx context.Context, m *model.ModelProfile) error {
	row := s.conn.QueryRow(ctx, `
		UPDATE models SET
			first_name = $2, last_name = $3, email = $4, phone = $5, status = $6,
			visibility_status = $7, is_approved = $8, is_featured = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+modelColumns,
		m.ID, m.FirstName, m.LastName, m.Email, m.Phone, m.Status,
		m.VisibilityStatus, m.IsApproved, m.IsFeatured,
	)
	updated, err := scanModel(row)
	if err != nil {
		return err
	}
	*m = *updated
	return nil
}

func (s *modelStore) LinkUser(ctx context.Context, modelID, userID int64) (bool, error) {
	tag, err := s.conn.Exec(ctx,
		`UPDATE models SET user_id = $2, updated_at = now() WHERE id = $1 AND user_id IS NULL`,
		modelID, userID)
	if err != nil {
		return false, fmt.Errorf("linking model %d to user %d: %w", modelID, userID, translate(err))
	}
	return tag.RowsAffected() == 1, nil
}

func scanModel(row pgx.Row) (*model.ModelProfile, error) {
	var m model.ModelProfile
	err := row.Scan(
		&m.ID, &m.UserID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.Status,
		&m.VisibilityStatus, &m.IsApproved, &m.IsFeatured, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}
