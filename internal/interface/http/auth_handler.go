package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authd/config"
	"github.com/oksasatya/authd/internal/application"
	"github.com/oksasatya/authd/internal/infrastructure/postgres/pgstore"
	"github.com/oksasatya/authd/internal/interface/middleware"
	"github.com/oksasatya/authd/pkg/helpers"
	"github.com/oksasatya/authd/pkg/response"
	"github.com/oksasatya/authd/pkg/validation"
)

const maxAvatarBytes = 5 << 20

type AuthHandler struct {
	Svc     *application.Service
	Logger  *logrus.Logger
	Cfg     *config.Config
	Cookies *helpers.Manager
	DB      *pgxpool.Pool // audit log writes, optional
}

func NewAuthHandler(svc *application.Service, logger *logrus.Logger, cfg *config.Config, db *pgxpool.Pool) *AuthHandler {
	return &AuthHandler{
		Svc:     svc,
		Logger:  logger,
		Cfg:     cfg,
		Cookies: helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure),
		DB:      db,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,uname"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required,pwd"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,pwd"`
}

// sessionResponse is the login/refresh payload. Tokens ride in the body as
// well as in the httpOnly cookies so non-browser clients can use them.
type sessionResponse struct {
	User                  *application.UserProfile `json:"user,omitempty"`
	AccessToken           string                   `json:"accessToken"`
	AccessTokenExpiresAt  time.Time                `json:"accessTokenExpiresAt"`
	RefreshToken          string                   `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time                `json:"refreshTokenExpiresAt"`
}

func newSessionResponse(user *application.UserProfile, pair application.TokenPair) sessionResponse {
	return sessionResponse{
		User:                  user,
		AccessToken:           pair.AccessToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiry,
		RefreshToken:          pair.RefreshToken,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiry,
	}
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	prof, err := h.Svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.audit(c, prof.ID, prof.Email, "register", nil)
	response.Success(c, http.StatusCreated, prof, "registration successful")
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	prof, pair, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.audit(c, "", req.Email, "login_failed", nil)
		h.respondError(c, err)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	h.audit(c, prof.ID, prof.Email, "login", nil)
	response.Success(c, http.StatusOK, newSessionResponse(prof, pair), "login successful")
}

// Logout POST /api/auth/logout (auth)
func (h *AuthHandler) Logout(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	if err := h.Svc.Logout(c.Request.Context(), uid); err != nil {
		h.respondError(c, err)
		return
	}
	h.Cookies.Clear(c)
	h.audit(c, uid, c.GetString(middleware.CtxUserEmailKey), "logout", nil)
	response.Success[any](c, http.StatusOK, gin.H{"loggedOut": true}, "logged out")
}

// RefreshToken POST /api/auth/refresh-token
// The refresh token comes from the refresh_token cookie or the body.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	refresh, _ := c.Cookie("refresh_token")
	if refresh == "" {
		refresh = req.RefreshToken
	}

	pair, err := h.Svc.RefreshAccessToken(c.Request.Context(), refresh)
	if err != nil {
		if errors.Is(err, application.ErrInvalidToken) {
			h.audit(c, "", "", "refresh_replay_rejected", nil)
		}
		h.respondError(c, err)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.Success(c, http.StatusOK, newSessionResponse(nil, pair), "token refreshed")
}

// VerifyEmail GET /api/auth/verify-email/:token
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	tok := c.Param("token")
	if tok == "" {
		response.Error(c, http.StatusBadRequest, "missing token", nil)
		return
	}

	prof, err := h.Svc.VerifyEmail(c.Request.Context(), tok)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.audit(c, prof.ID, prof.Email, "verify_email", nil)
	response.Success(c, http.StatusOK, prof, "email verified")
}

// ResendEmailVerification POST /api/auth/resend-email-verification (auth)
func (h *AuthHandler) ResendEmailVerification(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	if err := h.Svc.ResendEmailVerification(c.Request.Context(), uid); err != nil {
		h.respondError(c, err)
		return
	}
	h.audit(c, uid, c.GetString(middleware.CtxUserEmailKey), "resend_verification", nil)
	response.Success[any](c, http.StatusOK, gin.H{"sent": true}, "verification email sent")
}

// ForgotPassword POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.audit(c, "", req.Email, "forgot_password_unknown", nil)
		h.respondError(c, err)
		return
	}
	h.audit(c, "", req.Email, "forgot_password", nil)
	response.Success[any](c, http.StatusOK, gin.H{"sent": true}, "password reset email sent")
}

// ResetPassword POST /api/auth/reset-password/:token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	tok := c.Param("token")
	if tok == "" {
		response.Error(c, http.StatusBadRequest, "missing token", nil)
		return
	}
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.ResetPassword(c.Request.Context(), tok, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	h.audit(c, "", "", "reset_password", nil)
	response.Success[any](c, http.StatusOK, gin.H{"reset": true}, "password updated")
}

// ChangePassword POST /api/auth/change-password (auth)
// Clears the token cookies: the refresh token was revoked, so the client
// has to log in again once the access token runs out anyway.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.ChangePassword(c.Request.Context(), uid, req.OldPassword, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	h.Cookies.Clear(c)
	h.audit(c, uid, c.GetString(middleware.CtxUserEmailKey), "change_password", nil)
	response.Success[any](c, http.StatusOK, gin.H{"changed": true}, "password changed")
}

// CurrentUser GET /api/auth/current-user (auth)
func (h *AuthHandler) CurrentUser(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	prof, err := h.Svc.GetCurrentUser(c.Request.Context(), uid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, prof, "profile")
}

// UploadAvatar PATCH /api/auth/avatar (auth, multipart field "avatar")
func (h *AuthHandler) UploadAvatar(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)

	file, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "missing avatar file", nil)
		return
	}
	if file.Size > maxAvatarBytes {
		response.Error(c, http.StatusBadRequest, "avatar too large", nil)
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "unreadable avatar file", nil)
		return
	}
	defer func() { _ = src.Close() }()

	prof, err := h.Svc.UploadAvatar(c.Request.Context(), uid, src, file.Filename, file.Header.Get("Content-Type"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.audit(c, uid, prof.Email, "avatar_update", map[string]any{"avatarUrl": prof.AvatarURL})
	response.Success(c, http.StatusOK, prof, "avatar updated")
}

// Search GET /api/auth/users/search?q=&size= (auth)
func (h *AuthHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.Error(c, http.StatusBadRequest, "missing query", nil)
		return
	}
	size := 10
	if v := c.Query("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			size = n
		}
	}

	results, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, results, "search results")
}

// respondError maps service sentinels onto the HTTP envelope.
func (h *AuthHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, application.ErrConflict):
		response.Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, application.ErrNotFound):
		response.Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, application.ErrInvalidCredentials),
		errors.Is(err, application.ErrUnauthorized),
		errors.Is(err, application.ErrRefreshExpired),
		errors.Is(err, application.ErrInvalidToken):
		response.Error(c, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, application.ErrTokenInvalidOrExpired):
		response.Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, application.ErrAlreadyVerified):
		response.Error(c, http.StatusConflict, err.Error(), nil)
	default:
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("path", c.FullPath()).Error("unhandled service error")
		}
		response.Error(c, http.StatusInternalServerError, "internal server error", nil)
	}
}

func clientIP(c *gin.Context) string {
	if ip := c.GetString("real_ip"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// audit records the action best-effort; a missing pool or failed insert
// never affects the response.
func (h *AuthHandler) audit(c *gin.Context, userID, email, action string, metadata map[string]any) {
	if h.DB == nil {
		return
	}
	md, _ := json.Marshal(metadata)

	var uid pgtype.UUID
	if userID != "" {
		if parsed, err := uuid.Parse(userID); err == nil {
			uid.Bytes = parsed
			uid.Valid = true
		}
	}
	var emailTxt pgtype.Text
	if email != "" {
		emailTxt.String = email
		emailTxt.Valid = true
	}
	var ipTxt pgtype.Text
	if ip := clientIP(c); ip != "" {
		ipTxt.String = ip
		ipTxt.Valid = true
	}
	var uaTxt pgtype.Text
	if ua := c.GetHeader("User-Agent"); ua != "" {
		uaTxt.String = ua
		uaTxt.Valid = true
	}

	q := pgstore.New(h.DB)
	if err := q.InsertAuditLog(c.Request.Context(), pgstore.InsertAuditLogParams{
		UserID:    uid,
		Email:     emailTxt,
		Action:    action,
		Ip:        ipTxt,
		UserAgent: uaTxt,
		Metadata:  md,
	}); err != nil && h.Logger != nil {
		h.Logger.WithError(err).WithField("action", action).Warn("audit insert failed")
	}
}
