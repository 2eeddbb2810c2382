package application

import "errors"

// Sentinel errors returned by the auth flows. Handlers map them to HTTP
// statuses; anything else is a 500.
var (
	ErrConflict           = errors.New("email or username already registered")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")

	// Refresh flow: expired (or otherwise unverifiable) refresh JWTs are
	// reported separately from tokens that verify but do not match the
	// stored one.
	ErrRefreshExpired = errors.New("refresh token expired")
	ErrInvalidToken   = errors.New("invalid token")

	// One-shot email link failures are indistinguishable on purpose.
	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")

	ErrAlreadyVerified = errors.New("email already verified")
)
