package model

import "time"

// ModelProfile is a talent profile managed by this service. UserID is set
// once the profile is linked to a user account.
type ModelProfile struct {
	ID               int64     `json:"id"`
	UserID           *int64    `json:"user_id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	Phone            *string   `json:"phone"`
	Status           string    `json:"status"`
	VisibilityStatus string    `json:"visibility_status"`
	IsApproved       bool      `json:"is_approved"`
	IsFeatured       bool      `json:"is_featured"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (m *ModelProfile) Linked() bool {
	return m.UserID != nil
}
