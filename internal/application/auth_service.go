package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authd/config"
	"github.com/oksasatya/authd/internal/domain/entity"
	repo "github.com/oksasatya/authd/internal/domain/repository"
	"github.com/oksasatya/authd/pkg/helpers"
	"github.com/oksasatya/authd/pkg/mailer"
	tpl "github.com/oksasatya/authd/pkg/mailer/templates"
	"github.com/oksasatya/authd/pkg/token"
)

// EmailPublisher enqueues an email job; helpers.RabbitPublisher implements it.
type EmailPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// Service orchestrates the auth flows. Repo, JWT, Verify, Reset and Cfg are
// required; Pub, GCS, Redis and ES are optional and every flow works with
// them absent.
type Service struct {
	Repo   repo.UserRepository
	JWT    *helpers.JWTManager
	Verify *token.Codec // email verification links
	Reset  *token.Codec // password reset links
	Cfg    *config.Config

	Pub          EmailPublisher
	GCS          *storage.Client
	GCSBucket    string
	Redis        *redis.Client
	Logger       *logrus.Logger
	ES           *elasticsearch.Client
	ESUsersIndex string
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Register creates an unverified account and mails the verification link.
// Email and username are unique; either collision is a Conflict.
func (s *Service) Register(ctx context.Context, username, email, password string) (*UserProfile, error) {
	username = normalizeUsername(username)
	email = normalizeEmail(email)

	if _, err := s.Repo.FindByEmailOrUsername(ctx, email, username); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	u := &entity.User{
		Username: username,
		Email:    email,
		Role:     entity.RoleUser,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}

	plain, digest, expiry, err := s.Verify.Issue()
	if err != nil {
		return nil, err
	}
	u.SetEmailVerificationToken(digest, expiry)

	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, err
	}
	registrations.Add(1)

	s.enqueueVerificationEmail(ctx, u, plain, expiry)
	s.indexUser(ctx, u)

	return NewUserProfile(u), nil
}

// Login checks credentials and starts a session: a fresh token pair is
// issued and the refresh token becomes the user's single valid one.
func (s *Service) Login(ctx context.Context, email, password string) (*UserProfile, TokenPair, error) {
	u, err := s.Repo.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, TokenPair{}, ErrNotFound
	}
	if err != nil {
		return nil, TokenPair{}, err
	}
	if !u.ComparePassword(password) {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, TokenPair{}, err
	}
	logins.Add(1)
	s.dropCachedProfile(ctx, u.ID)

	return NewUserProfile(u), pair, nil
}

// Logout revokes the stored refresh token. The access token stays valid
// until it expires; only the session slot is cleared.
func (s *Service) Logout(ctx context.Context, userID string) error {
	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	u.ClearRefreshToken()
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.dropCachedProfile(ctx, u.ID)
	return nil
}

// RefreshAccessToken rotates the token pair. The presented token must both
// verify as a refresh JWT and equal the stored one; a verified token that
// does not match means it was already rotated (or revoked) and is rejected.
func (s *Service) RefreshAccessToken(ctx context.Context, presented string) (TokenPair, error) {
	if presented == "" {
		return TokenPair{}, ErrUnauthorized
	}
	claims, err := s.JWT.ParseRefreshToken(presented)
	if err != nil {
		return TokenPair{}, ErrRefreshExpired
	}
	u, err := s.Repo.FindByID(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return TokenPair{}, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	if u.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(u.RefreshToken)) != 1 {
		return TokenPair{}, ErrInvalidToken
	}

	pair, err := s.issueTokens(u)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.Repo.Update(ctx, u); err != nil {
		return TokenPair{}, err
	}
	tokenRefreshes.Add(1)
	return pair, nil
}

// VerifyEmail consumes a verification link. The repository only matches
// unexpired hashes, so expired and unknown tokens fail the same way.
func (s *Service) VerifyEmail(ctx context.Context, plain string) (*UserProfile, error) {
	u, err := s.Repo.FindByVerificationTokenHash(ctx, token.Digest(plain))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTokenInvalidOrExpired
	}
	if err != nil {
		return nil, err
	}
	if u.EmailVerificationTokenHash == nil || u.EmailVerificationExpiry == nil ||
		!s.Verify.Verify(plain, *u.EmailVerificationTokenHash, *u.EmailVerificationExpiry) {
		return nil, ErrTokenInvalidOrExpired
	}

	u.MarkEmailVerified()
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.dropCachedProfile(ctx, u.ID)
	s.indexUser(ctx, u)
	return NewUserProfile(u), nil
}

// ResendEmailVerification reissues the link, replacing any outstanding one.
func (s *Service) ResendEmailVerification(ctx context.Context, userID string) error {
	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if u.IsEmailVerified {
		return ErrAlreadyVerified
	}

	plain, digest, expiry, err := s.Verify.Issue()
	if err != nil {
		return err
	}
	u.SetEmailVerificationToken(digest, expiry)
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.enqueueVerificationEmail(ctx, u, plain, expiry)
	return nil
}

// ForgotPassword issues a reset link for a known email. Unknown emails are
// reported as NotFound rather than masked.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.Repo.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	plain, digest, expiry, err := s.Reset.Issue()
	if err != nil {
		return err
	}
	u.SetForgotPasswordToken(digest, expiry)
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.enqueuePasswordResetEmail(ctx, u, plain, expiry)
	return nil
}

// ResetPassword consumes a reset link, sets the new password, and revokes
// the active session so stolen refresh tokens die with the old password.
func (s *Service) ResetPassword(ctx context.Context, plain, newPassword string) error {
	u, err := s.Repo.FindByResetTokenHash(ctx, token.Digest(plain))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTokenInvalidOrExpired
	}
	if err != nil {
		return err
	}
	if u.ForgotPasswordTokenHash == nil || u.ForgotPasswordExpiry == nil ||
		!s.Reset.Verify(plain, *u.ForgotPasswordTokenHash, *u.ForgotPasswordExpiry) {
		return ErrTokenInvalidOrExpired
	}

	u.ClearForgotPasswordToken()
	if err := u.SetPassword(newPassword); err != nil {
		return err
	}
	u.ClearRefreshToken()
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.dropCachedProfile(ctx, u.ID)
	return nil
}

// ChangePassword is the logged-in variant: it needs the old password and
// also revokes the active session.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !u.ComparePassword(oldPassword) {
		return ErrInvalidCredentials
	}

	if err := u.SetPassword(newPassword); err != nil {
		return err
	}
	u.ClearRefreshToken()
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.dropCachedProfile(ctx, u.ID)
	return nil
}

// issueTokens generates a fresh pair and stores the refresh token on the
// entity. The caller persists the user.
func (s *Service) issueTokens(u *entity.User) (TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(u.ID, u.Email, u.Username)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Error("generate access token failed")
		}
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(u.ID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Error("generate refresh token failed")
		}
		return TokenPair{}, err
	}
	u.RefreshToken = refresh
	return TokenPair{
		AccessToken:        access,
		AccessTokenExpiry:  aexp,
		RefreshToken:       refresh,
		RefreshTokenExpiry: rexp,
	}, nil
}

func (s *Service) enqueueVerificationEmail(ctx context.Context, u *entity.User, plainToken string, expiry time.Time) {
	link := strings.TrimRight(s.Cfg.VerifyEmailURL, "/") + "/" + plainToken
	data := tpl.NewVerifyEmailData(s.Cfg, u.Username, u.Email, link, tpl.WithExpiresAt(expiry))
	s.enqueueEmail(ctx, mailer.EmailJob{To: u.Email, Template: tpl.VerifyEmail, Data: data})
}

func (s *Service) enqueuePasswordResetEmail(ctx context.Context, u *entity.User, plainToken string, expiry time.Time) {
	link := strings.TrimRight(s.Cfg.ResetPasswordURL, "/") + "/" + plainToken
	data := tpl.NewForgotPasswordData(s.Cfg, u.Username, u.Email, link, tpl.WithExpiresAt(expiry))
	s.enqueueEmail(ctx, mailer.EmailJob{To: u.Email, Template: tpl.ForgotPassword, Data: data})
}

// enqueueEmail publishes best-effort: a broker outage must not fail the
// operation that triggered the email.
func (s *Service) enqueueEmail(ctx context.Context, job mailer.EmailJob) {
	if s.Pub == nil || !s.Cfg.MailSendEnabled {
		return
	}
	if err := s.Pub.PublishJSON(ctx, job); err != nil {
		emailsFailed.Add(1)
		if s.Logger != nil {
			s.Logger.WithError(err).WithFields(logrus.Fields{
				"to":       job.To,
				"template": job.Template,
			}).Warn("email enqueue failed")
		}
		return
	}
	emailsEnqueued.Add(1)
}
