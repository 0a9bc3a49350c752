package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/roster/common/id"
	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/store"
)

// EventPublisher is the part of publisher.Publisher the model service needs.
type EventPublisher interface {
	Configured() bool
	Publish(ctx context.Context, req event.PublishRequest) (string, error)
}

type CreateModelParams struct {
	FirstName        string  `json:"first_name" binding:"required"`
	LastName         string  `json:"last_name" binding:"required"`
	Email            string  `json:"email" binding:"required,email"`
	Phone            *string `json:"phone"`
	Status           string  `json:"status"`
	VisibilityStatus string  `json:"visibility_status"`
	IsApproved       bool    `json:"is_approved"`
	IsFeatured       bool    `json:"is_featured"`
}

// UpdateModelParams carries a partial update. Nil fields are left unchanged.
type UpdateModelParams struct {
	FirstName        *string `json:"first_name"`
	LastName         *string `json:"last_name"`
	Email            *string `json:"email" binding:"omitempty,email"`
	Phone            *string `json:"phone"`
	Status           *string `json:"status"`
	VisibilityStatus *string `json:"visibility_status"`
	IsApproved       *bool   `json:"is_approved"`
	IsFeatured       *bool   `json:"is_featured"`
}

const (
	defaultModelStatus     = "active"
	defaultModelVisibility = "public"
)

// modelEventTargets are the services that mirror model profiles.
var modelEventTargets = event.To(event.ServiceUser, event.ServiceSelection)

type ModelService interface {
	Get(ctx context.Context, modelID int64) (*model.ModelProfile, error)
	Create(ctx context.Context, params CreateModelParams) (*model.ModelProfile, error)
	Update(ctx context.Context, modelID int64, params UpdateModelParams) (*model.ModelProfile, error)
}

type modelService struct {
	models    store.ModelStore
	publisher EventPublisher
	now       func() time.Time
}

func NewModelService(models store.ModelStore, publisher EventPublisher) ModelService {
	return &modelService{
		models:    models,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *modelService) Get(ctx context.Context, modelID int64) (*model.ModelProfile, error) {
	m, err := s.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("getting model %d: %w", modelID, err)
	}
	return m, nil
}

func (s *modelService) Create(ctx context.Context, params CreateModelParams) (*model.ModelProfile, error) {
	modelID, err := id.Next()
	if err != nil {
		return nil, fmt.Errorf("generating model id: %w", err)
	}

	now := s.now().UTC()
	m := &model.ModelProfile{
		ID:               modelID,
		FirstName:        params.FirstName,
		LastName:         params.LastName,
		Email:            strings.ToLower(strings.TrimSpace(params.Email)),
		Phone:            params.Phone,
		Status:           orDefault(params.Status, defaultModelStatus),
		VisibilityStatus: orDefault(params.VisibilityStatus, defaultModelVisibility),
		IsApproved:       params.IsApproved,
		IsFeatured:       params.IsFeatured,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.models.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("creating model: %w", err)
	}

	slog.InfoContext(ctx, "model profile created", "model_id", m.ID)
	s.publish(ctx, event.ModelCreated, m, nil)
	return m, nil
}

func (s *modelService) Update(ctx context.Context, modelID int64, params UpdateModelParams) (*model.ModelProfile, error) {
	m, err := s.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("getting model %d: %w", modelID, err)
	}

	updated := applyModelFields(m, params)
	if len(updated) == 0 {
		return m, nil
	}

	m.UpdatedAt = s.now().UTC()
	if err := s.models.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("updating model %d: %w", modelID, err)
	}

	slog.InfoContext(ctx, "model profile updated",
		"model_id", m.ID,
		"updated_fields", updated)
	s.publish(ctx, event.ModelUpdated, m, updated)
	return m, nil
}

// publish announces the change. The write has already committed, so a
// failure here is logged and swallowed.
func (s *modelService) publish(ctx context.Context, eventType event.Type, m *model.ModelProfile, updated []string) {
	if s.publisher == nil || !s.publisher.Configured() {
		slog.WarnContext(ctx, "event publisher not configured, skipping model event",
			"event_type", eventType,
			"model_id", m.ID)
		return
	}

	payload := modelPayload(m)
	if eventType == event.ModelUpdated {
		if updated == nil {
			updated = []string{}
		}
		payload["updated_fields"] = updated
	}

	messageID, err := s.publisher.Publish(ctx, event.PublishRequest{
		EventType:     eventType,
		Payload:       payload,
		SourceService: event.DefaultSourceService,
		Targets:       modelEventTargets,
		GroupID:       fmt.Sprintf("model-%d", m.ID),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish model event",
			"error", err,
			"event_type", eventType,
			"model_id", m.ID)
		return
	}

	slog.InfoContext(ctx, "published model event",
		"event_type", eventType,
		"model_id", m.ID,
		"message_id", messageID)
}

func modelPayload(m *model.ModelProfile) map[string]any {
	var userID any
	if m.UserID != nil {
		userID = *m.UserID
	}
	var phone any
	if m.Phone != nil {
		phone = *m.Phone
	}
	return map[string]any{
		"id":                m.ID,
		"user_id":           userID,
		"first_name":        m.FirstName,
		"last_name":         m.LastName,
		"phone":             phone,
		"email":             m.Email,
		"is_approved":       m.IsApproved,
		"status":            m.Status,
		"visibility_status": m.VisibilityStatus,
		"is_featured":       m.IsFeatured,
		"created_at":        m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":        m.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// applyModelFields copies the set fields of p onto m and returns the names
// of those that changed.
func applyModelFields(m *model.ModelProfile, p UpdateModelParams) []string {
	var updated []string
	setStr := func(name string, dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			updated = append(updated, name)
		}
	}
	setBool := func(name string, dst *bool, src *bool) {
		if src != nil && *dst != *src {
			*dst = *src
			updated = append(updated, name)
		}
	}

	setStr("first_name", &m.FirstName, p.FirstName)
	setStr("last_name", &m.LastName, p.LastName)
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		setStr("email", &m.Email, &email)
	}
	if p.Phone != nil && (m.Phone == nil || *m.Phone != *p.Phone) {
		v := *p.Phone
		m.Phone = &v
		updated = append(updated, "phone")
	}
	setStr("status", &m.Status, p.Status)
	setStr("visibility_status", &m.VisibilityStatus, p.VisibilityStatus)
	setBool("is_approved", &m.IsApproved, p.IsApproved)
	setBool("is_featured", &m.IsFeatured, p.IsFeatured)
	return updated
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
