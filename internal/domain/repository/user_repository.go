package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/authd/internal/domain/entity"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("user not found")

// UserRepository defines the persistence operations the auth flows need.
// The token-hash lookups only return rows whose expiry is still in the
// future; an expired link behaves exactly like an unknown one.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*entity.User, error)
	FindByVerificationTokenHash(ctx context.Context, hash string) (*entity.User, error)
	FindByResetTokenHash(ctx context.Context, hash string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
}
