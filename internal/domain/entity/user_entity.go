package entity

import (
	"time"

	"github.com/oksasatya/authd/pkg/helpers"
)

// User is the aggregate root for the auth domain.
//
// RefreshToken holds the single currently-valid refresh JWT; empty means no
// active session. The two token-hash/expiry pairs back one-shot email links
// and are either both set or both nil (the schema enforces the same).
type User struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	Role            Role
	IsEmailVerified bool

	RefreshToken string

	EmailVerificationTokenHash *string
	EmailVerificationExpiry    *time.Time

	ForgotPasswordTokenHash *string
	ForgotPasswordExpiry    *time.Time

	AvatarURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetPassword hashes plain with bcrypt and stores the hash. It is the only
// way a password reaches the entity; nothing else re-hashes on save.
func (u *User) SetPassword(plain string) error {
	hash, err := helpers.HashPassword(plain)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// ComparePassword reports whether plain matches the stored hash.
func (u *User) ComparePassword(plain string) bool {
	return helpers.CompareHashAndPassword(u.PasswordHash, plain)
}

func (u *User) SetEmailVerificationToken(hash string, expiry time.Time) {
	u.EmailVerificationTokenHash = &hash
	u.EmailVerificationExpiry = &expiry
}

func (u *User) ClearEmailVerificationToken() {
	u.EmailVerificationTokenHash = nil
	u.EmailVerificationExpiry = nil
}

func (u *User) SetForgotPasswordToken(hash string, expiry time.Time) {
	u.ForgotPasswordTokenHash = &hash
	u.ForgotPasswordExpiry = &expiry
}

func (u *User) ClearForgotPasswordToken() {
	u.ForgotPasswordTokenHash = nil
	u.ForgotPasswordExpiry = nil
}

// MarkEmailVerified flips the flag and retires the verification link.
func (u *User) MarkEmailVerified() {
	u.IsEmailVerified = true
	u.ClearEmailVerificationToken()
}

// ClearRefreshToken revokes the active session, if any.
func (u *User) ClearRefreshToken() {
	u.RefreshToken = ""
}
