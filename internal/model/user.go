package model

import "time"

// User is the local copy of an account owned by the user service. It is
// kept in sync from user_created and user_updated events.
type User struct {
	ID                               int64      `json:"id"`
	Name                             *string    `json:"name,omitempty"`
	Username                         string     `json:"username"`
	Email                            *string    `json:"email,omitempty"`
	Phone                            *string    `json:"phone,omitempty"`
	RoleName                         string     `json:"role_name"`
	ProfilePictureURL                *string    `json:"profile_picture_url,omitempty"`
	TemporaryProfilePictureURL       *string    `json:"temporary_profile_picture_url,omitempty"`
	TemporaryProfilePictureExpiresAt *time.Time `json:"temporary_profile_picture_expires_at,omitempty"`
	Status                           string     `json:"status"`
	TokenVersion                     *int32     `json:"token_version,omitempty"`
	CreatedAt                        time.Time  `json:"created_at"`
	UpdatedAt                        time.Time  `json:"updated_at"`
}

const RoleModel = "model"
