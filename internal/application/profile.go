package application

import (
	"time"

	"github.com/oksasatya/authd/internal/domain/entity"
)

// UserProfile is the sanitized projection of a user handed to clients and
// caches. It never carries the password hash, the refresh token, or any
// one-shot token material.
type UserProfile struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	AvatarURL       string    `json:"avatarUrl"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func NewUserProfile(u *entity.User) *UserProfile {
	return &UserProfile{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role.String(),
		IsEmailVerified: u.IsEmailVerified,
		AvatarURL:       u.AvatarURL,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
