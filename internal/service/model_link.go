package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/router"
	"basegraph.app/roster/internal/store"
)

// ModelLinker attaches newly registered model users to the profile that was
// created for them before they signed up.
type ModelLinker interface {
	AutoLinkUser(ctx context.Context, env event.Envelope) (router.Result, error)
}

type modelLinker struct {
	models store.ModelStore
}

func NewModelLinker(models store.ModelStore) ModelLinker {
	return &modelLinker{models: models}
}

type linkData struct {
	UserID   json.Number `json:"user_id" validate:"required"`
	Username string      `json:"username" validate:"required"`
	Email    string      `json:"email"`
	RoleName string      `json:"role_name"`
}

// AutoLinkUser links the profile matching the user's email, or username when
// no email was sent. Linking is best-effort: no match and an already linked
// profile both succeed.
func (l *modelLinker) AutoLinkUser(ctx context.Context, env event.Envelope) (router.Result, error) {
	var data linkData
	if err := env.DecodePayload(&data); err != nil {
		return router.Failure(fmt.Sprintf("invalid payload: %v", err)), nil
	}
	if err := payloadValidator().Struct(data); err != nil {
		return router.Failure(describeValidation(err)), nil
	}
	userID, err := data.UserID.Int64()
	if err != nil {
		return router.Failure(fmt.Sprintf("user_id must be an integer, got %q", data.UserID)), nil
	}

	if data.RoleName != model.RoleModel {
		slog.DebugContext(ctx, "user is not a model, skipping auto-link",
			"user_id", userID,
			"role_name", data.RoleName)
		return router.Success(), nil
	}

	lookup := data.Email
	if lookup == "" {
		lookup = data.Username
	}

	profile, err := l.models.FindByEmail(ctx, lookup)
	if errors.Is(err, store.ErrNotFound) {
		slog.InfoContext(ctx, "no model profile found for user",
			"user_id", userID,
			"lookup", lookup)
		return router.Success(), nil
	}
	if err != nil {
		return router.Result{}, fmt.Errorf("finding model profile for %q: %w", lookup, err)
	}

	if profile.Linked() {
		slog.InfoContext(ctx, "model profile already linked",
			"model_id", profile.ID,
			"linked_user_id", *profile.UserID,
			"user_id", userID)
		return router.Success(), nil
	}

	linked, err := l.models.LinkUser(ctx, profile.ID, userID)
	if err != nil {
		return router.Result{}, fmt.Errorf("linking model %d to user %d: %w", profile.ID, userID, err)
	}
	if !linked {
		slog.InfoContext(ctx, "model profile linked concurrently",
			"model_id", profile.ID,
			"user_id", userID)
		return router.Success(), nil
	}

	slog.InfoContext(ctx, "linked model profile to user",
		"model_id", profile.ID,
		"user_id", userID)
	return router.Success(), nil
}
