package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"basegraph.app/roster/core/db"
	"basegraph.app/roster/internal/model"
)

type userStore struct {
	conn db.DBTX
}

func newUserStore(conn db.DBTX) UserStore {
	return &userStore{conn: conn}
}

const userColumns = `id, name, username, email, phone, role_name, profile_picture_url,
	temporary_profile_picture_url, temporary_profile_picture_expires_at, status,
	token_version, created_at, updated_at`

func (s *userStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *userStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (s *userStore) Create(ctx context.Context, user *model.User) error {
	row := s.conn.QueryRow(ctx, `
		INSERT INTO users (id, name, username, email, phone, role_name, profile_picture_url,
			temporary_profile_picture_url, temporary_profile_picture_expires_at, status, token_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+userColumns,
		user.ID, user.Name, user.Username, user.Email, user.Phone, user.RoleName, user.ProfilePictureURL,
		user.TemporaryProfilePictureURL, user.TemporaryProfilePictureExpiresAt, user.Status, user.TokenVersion,
	)
	created, err := scanUser(row)
	if err != nil {
		return err
	}
	*user = *created
	return nil
}

func (s *userStore) Update(ctx context.Context, user *model.User) error {
	row := s.conn.QueryRow(ctx, `
		UPDATE users SET
			name = $2, username = $3, email = $4, phone = $5, role_name = $6,
			profile_picture_url = $7, temporary_profile_picture_url = $8,
			temporary_profile_picture_expires_at = $9, status = $10, token_version = $11,
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Name, user.Username, user.Email, user.Phone, user.RoleName, user.ProfilePictureURL,
		user.TemporaryProfilePictureURL, user.TemporaryProfilePictureExpiresAt, user.Status, user.TokenVersion,
	)
	updated, err := scanUser(row)
	if err != nil {
		return err
	}
	*user = *updated
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Username, &u.Email, &u.Phone, &u.RoleName, &u.ProfilePictureURL,
		&u.TemporaryProfilePictureURL, &u.TemporaryProfilePictureExpiresAt, &u.Status,
		&u.TokenVersion, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
