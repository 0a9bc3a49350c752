package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/router"
	"basegraph.app/roster/internal/store"
)

// UserEventData is the payload of user_created and user_updated. Fields the
// user service sends that this service does not store are ignored.
type UserEventData struct {
	UserID                           json.Number `json:"user_id" validate:"required"`
	Name                             *string     `json:"name"`
	Username                         string      `json:"username" validate:"required"`
	Email                            *string     `json:"email" validate:"omitempty,email"`
	Phone                            *string     `json:"phone"`
	RoleName                         string      `json:"role_name" validate:"required"`
	ProfilePictureURL                *string     `json:"profile_picture_url"`
	TemporaryProfilePictureURL       *string     `json:"temporary_profile_picture_url"`
	TemporaryProfilePictureExpiresAt *string     `json:"temporary_profile_picture_expires_at"`
	Status                           string      `json:"status" validate:"required"`
	TokenVersion                     *int32      `json:"token_version"`
	UpdatedFields                    []string    `json:"updated_fields"`
}

// decodeUserEvent returns the validated payload, or a non-empty reason when
// the payload can never be processed.
func decodeUserEvent(env event.Envelope) (UserEventData, int64, string) {
	var data UserEventData
	if err := env.DecodePayload(&data); err != nil {
		return data, 0, fmt.Sprintf("invalid payload: %v", err)
	}
	if err := payloadValidator().Struct(data); err != nil {
		return data, 0, describeValidation(err)
	}
	userID, err := data.UserID.Int64()
	if err != nil {
		return data, 0, fmt.Sprintf("user_id must be an integer, got %q", data.UserID)
	}
	return data, userID, ""
}

func (d UserEventData) toUser(id int64) *model.User {
	return &model.User{
		ID:                               id,
		Name:                             d.Name,
		Username:                         d.Username,
		Email:                            d.Email,
		Phone:                            d.Phone,
		RoleName:                         d.RoleName,
		ProfilePictureURL:                d.ProfilePictureURL,
		TemporaryProfilePictureURL:       d.TemporaryProfilePictureURL,
		TemporaryProfilePictureExpiresAt: parseOptionalTime(d.TemporaryProfilePictureExpiresAt),
		Status:                           d.Status,
		TokenVersion:                     d.TokenVersion,
	}
}

// UserEventHandler keeps the local users table in sync with the user service.
type UserEventHandler interface {
	CreateFromEvent(ctx context.Context, env event.Envelope) (router.Result, error)
	UpdateFromEvent(ctx context.Context, env event.Envelope) (router.Result, error)
}

type userEventHandler struct {
	users store.UserStore
}

func NewUserEventHandler(users store.UserStore) UserEventHandler {
	return &userEventHandler{users: users}
}

// CreateFromEvent inserts the user unless one with the same ID or username
// already exists, so redelivered events are harmless.
func (h *userEventHandler) CreateFromEvent(ctx context.Context, env event.Envelope) (router.Result, error) {
	data, userID, reason := decodeUserEvent(env)
	if reason != "" {
		slog.WarnContext(ctx, "rejecting user_created payload", "reason", reason)
		return router.Failure(reason), nil
	}
	return h.create(ctx, data, userID)
}

func (h *userEventHandler) create(ctx context.Context, data UserEventData, userID int64) (router.Result, error) {
	exists, err := h.exists(ctx, userID, data.Username)
	if err != nil {
		return router.Result{}, err
	}
	if exists {
		slog.InfoContext(ctx, "user already exists, skipping creation",
			"user_id", userID,
			"username", data.Username)
		return router.Success(), nil
	}

	user := data.toUser(userID)
	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			slog.InfoContext(ctx, "user created concurrently, skipping", "user_id", userID)
			return router.Success(), nil
		}
		return router.Result{}, fmt.Errorf("creating user %d: %w", userID, err)
	}

	slog.InfoContext(ctx, "created user from event",
		"user_id", user.ID,
		"username", user.Username)
	return router.Success(), nil
}

func (h *userEventHandler) exists(ctx context.Context, userID int64, username string) (bool, error) {
	if _, err := h.users.GetByID(ctx, userID); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("looking up user %d: %w", userID, err)
	}

	if _, err := h.users.GetByUsername(ctx, username); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("looking up username %q: %w", username, err)
	}
	return false, nil
}

// UpdateFromEvent applies the payload to the stored user. A missing user is
// created instead, since an update can overtake its create.
func (h *userEventHandler) UpdateFromEvent(ctx context.Context, env event.Envelope) (router.Result, error) {
	data, userID, reason := decodeUserEvent(env)
	if reason != "" {
		slog.WarnContext(ctx, "rejecting user_updated payload", "reason", reason)
		return router.Failure(reason), nil
	}

	existing, err := h.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "user not found for update, creating it", "user_id", userID)
		return h.create(ctx, data, userID)
	}
	if err != nil {
		return router.Result{}, fmt.Errorf("looking up user %d: %w", userID, err)
	}

	changed := applyUserFields(existing, data)
	if len(changed) == 0 {
		slog.InfoContext(ctx, "no changes detected for user", "user_id", userID)
		return router.Success(), nil
	}

	if err := h.users.Update(ctx, existing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return router.Failure(fmt.Sprintf("user %d disappeared during update", userID)), nil
		}
		return router.Result{}, fmt.Errorf("updating user %d: %w", userID, err)
	}

	slog.InfoContext(ctx, "updated user from event",
		"user_id", userID,
		"fields", changed)
	return router.Success(), nil
}

// applyUserFields copies the fields present in data onto u and returns the
// names of those that changed. Absent optional fields leave u untouched.
func applyUserFields(u *model.User, d UserEventData) []string {
	var changed []string
	setStr := func(name string, dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = append(changed, name)
		}
	}
	setOpt := func(name string, dst **string, src *string) {
		if src != nil && (*dst == nil || **dst != *src) {
			v := *src
			*dst = &v
			changed = append(changed, name)
		}
	}

	setOpt("name", &u.Name, d.Name)
	setStr("username", &u.Username, d.Username)
	setOpt("email", &u.Email, d.Email)
	setOpt("phone", &u.Phone, d.Phone)
	setStr("role_name", &u.RoleName, d.RoleName)
	setOpt("profile_picture_url", &u.ProfilePictureURL, d.ProfilePictureURL)
	setOpt("temporary_profile_picture_url", &u.TemporaryProfilePictureURL, d.TemporaryProfilePictureURL)
	setStr("status", &u.Status, d.Status)

	if t := parseOptionalTime(d.TemporaryProfilePictureExpiresAt); t != nil &&
		(u.TemporaryProfilePictureExpiresAt == nil || !u.TemporaryProfilePictureExpiresAt.Equal(*t)) {
		u.TemporaryProfilePictureExpiresAt = t
		changed = append(changed, "temporary_profile_picture_expires_at")
	}
	if d.TokenVersion != nil && (u.TokenVersion == nil || *u.TokenVersion != *d.TokenVersion) {
		v := *d.TokenVersion
		u.TokenVersion = &v
		changed = append(changed, "token_version")
	}
	return changed
}

var optionalTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseOptionalTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range optionalTimeLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
