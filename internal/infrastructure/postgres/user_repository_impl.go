package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/authd/internal/domain/entity"
	"github.com/oksasatya/authd/internal/domain/repository"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `
	id, username, email, password_hash, role, is_email_verified, refresh_token,
	email_verification_token_hash, email_verification_expiry,
	forgot_password_token_hash, forgot_password_expiry,
	avatar_url, created_at, updated_at`

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	var role string
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsEmailVerified,
		&u.RefreshToken,
		&u.EmailVerificationTokenHash, &u.EmailVerificationExpiry,
		&u.ForgotPasswordTokenHash, &u.ForgotPasswordExpiry,
		&u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Role = entity.Role(role)
	return u, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, args ...any) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+userColumns+` FROM users WHERE `+where, args...)
	return scanUser(row)
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (
			username, email, password_hash, role, is_email_verified, refresh_token,
			email_verification_token_hash, email_verification_expiry, avatar_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsEmailVerified,
		u.RefreshToken, u.EmailVerificationTokenHash, u.EmailVerificationExpiry, u.AvatarURL)

	return row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, `email = $1`, email)
}

func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*entity.User, error) {
	return r.findOne(ctx, `email = $1 OR username = $2 LIMIT 1`, email, username)
}

// FindByVerificationTokenHash only matches links that have not expired yet.
func (r *UserRepository) FindByVerificationTokenHash(ctx context.Context, hash string) (*entity.User, error) {
	return r.findOne(ctx, `email_verification_token_hash = $1 AND email_verification_expiry > now()`, hash)
}

func (r *UserRepository) FindByResetTokenHash(ctx context.Context, hash string) (*entity.User, error) {
	return r.findOne(ctx, `forgot_password_token_hash = $1 AND forgot_password_expiry > now()`, hash)
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	u.UpdatedAt = time.Now()

	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET username = $1, email = $2, password_hash = $3, role = $4,
		    is_email_verified = $5, refresh_token = $6,
		    email_verification_token_hash = $7, email_verification_expiry = $8,
		    forgot_password_token_hash = $9, forgot_password_expiry = $10,
		    avatar_url = $11, updated_at = $12
		WHERE id = $13
	`, u.Username, u.Email, u.PasswordHash, string(u.Role),
		u.IsEmailVerified, u.RefreshToken,
		u.EmailVerificationTokenHash, u.EmailVerificationExpiry,
		u.ForgotPasswordTokenHash, u.ForgotPasswordExpiry,
		u.AvatarURL, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
