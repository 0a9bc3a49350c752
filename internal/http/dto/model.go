package dto

import (
	"strconv"
	"time"

	"basegraph.app/roster/internal/model"
)

type ModelResponse struct {
	ID               string  `json:"id"`
	UserID           *string `json:"user_id"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Email            string  `json:"email"`
	Phone            *string `json:"phone"`
	Status           string  `json:"status"`
	VisibilityStatus string  `json:"visibility_status"`
	IsApproved       bool    `json:"is_approved"`
	IsFeatured       bool    `json:"is_featured"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// ToModelResponse renders IDs as strings; snowflake IDs overflow JSON numbers
// in JavaScript clients.
func ToModelResponse(m *model.ModelProfile) ModelResponse {
	resp := ModelResponse{
		ID:               strconv.FormatInt(m.ID, 10),
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Email:            m.Email,
		Phone:            m.Phone,
		Status:           m.Status,
		VisibilityStatus: m.VisibilityStatus,
		IsApproved:       m.IsApproved,
		IsFeatured:       m.IsFeatured,
		CreatedAt:        m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        m.UpdatedAt.Format(time.RFC3339),
	}
	if m.UserID != nil {
		userID := strconv.FormatInt(*m.UserID, 10)
		resp.UserID = &userID
	}
	return resp
}
