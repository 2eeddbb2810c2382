package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/authd/config"
	"github.com/oksasatya/authd/internal/application"
	"github.com/oksasatya/authd/internal/domain/entity"
	repo "github.com/oksasatya/authd/internal/domain/repository"
	handlers "github.com/oksasatya/authd/internal/interface/http"
	"github.com/oksasatya/authd/internal/router"
	"github.com/oksasatya/authd/internal/router/modules"
	"github.com/oksasatya/authd/pkg/helpers"
	"github.com/oksasatya/authd/pkg/mailer"
	tpl "github.com/oksasatya/authd/pkg/mailer/templates"
	"github.com/oksasatya/authd/pkg/token"
	"github.com/oksasatya/authd/pkg/validation"
)

// memRepo is an in-memory user store with the same lookup semantics as the
// Postgres implementation.
type memRepo struct {
	users map[string]*entity.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]*entity.User{}}
}

func cloneUser(u *entity.User) *entity.User {
	c := *u
	if u.EmailVerificationTokenHash != nil {
		v := *u.EmailVerificationTokenHash
		c.EmailVerificationTokenHash = &v
	}
	if u.EmailVerificationExpiry != nil {
		v := *u.EmailVerificationExpiry
		c.EmailVerificationExpiry = &v
	}
	if u.ForgotPasswordTokenHash != nil {
		v := *u.ForgotPasswordTokenHash
		c.ForgotPasswordTokenHash = &v
	}
	if u.ForgotPasswordExpiry != nil {
		v := *u.ForgotPasswordExpiry
		c.ForgotPasswordExpiry = &v
	}
	return &c
}

func (m *memRepo) Create(ctx context.Context, u *entity.User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	if u, ok := m.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*entity.User, error) {
	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) FindByVerificationTokenHash(ctx context.Context, hash string) (*entity.User, error) {
	for _, u := range m.users {
		if u.EmailVerificationTokenHash != nil && *u.EmailVerificationTokenHash == hash &&
			u.EmailVerificationExpiry != nil && u.EmailVerificationExpiry.After(time.Now()) {
			return cloneUser(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) FindByResetTokenHash(ctx context.Context, hash string) (*entity.User, error) {
	for _, u := range m.users {
		if u.ForgotPasswordTokenHash != nil && *u.ForgotPasswordTokenHash == hash &&
			u.ForgotPasswordExpiry != nil && u.ForgotPasswordExpiry.After(time.Now()) {
			return cloneUser(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) Update(ctx context.Context, u *entity.User) error {
	if _, ok := m.users[u.ID]; !ok {
		return repo.ErrNotFound
	}
	u.UpdatedAt = time.Now()
	m.users[u.ID] = cloneUser(u)
	return nil
}

// memPub records enqueued email jobs so tests can fish the plaintext tokens
// out of the action links.
type memPub struct {
	jobs []mailer.EmailJob
}

func (p *memPub) PublishJSON(ctx context.Context, body any) error {
	if job, ok := body.(mailer.EmailJob); ok {
		p.jobs = append(p.jobs, job)
	}
	return nil
}

func (p *memPub) lastLinkToken(t *testing.T, field string) string {
	t.Helper()
	require.NotEmpty(t, p.jobs)
	link, _ := p.jobs[len(p.jobs)-1].Data[field].(string)
	require.NotEmpty(t, link)
	i := strings.LastIndex(link, "/")
	require.Greater(t, i, -1)
	return link[i+1:]
}

type testEnv struct {
	engine *gin.Engine
	svc    *application.Service
	repo   *memRepo
	pub    *memPub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	r := newMemRepo()
	p := &memPub{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		AppName:          "authd",
		MailSendEnabled:  true,
		VerifyEmailURL:   "http://app.test/api/auth/verify-email",
		ResetPasswordURL: "http://app.test/reset-password",
	}
	svc := &application.Service{
		Repo:   r,
		JWT:    helpers.NewJWTManager("test-access", "test-refresh", time.Minute, time.Hour),
		Verify: token.NewCodec(20 * time.Minute),
		Reset:  token.NewCodec(20 * time.Minute),
		Cfg:    cfg,
		Logger: logger,
		Pub:    p,
	}

	engine := gin.New()
	reg := router.NewRegistry(engine)
	reg.Add(modules.NewAuthModule(handlers.NewAuthHandler(svc, logger, cfg, nil), svc.JWT))
	reg.RegisterAll()

	return &testEnv{engine: engine, svc: svc, repo: r, pub: p}
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     json.RawMessage `json:"errors"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, mod := range mods {
		mod(req)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func asMap(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func responseCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func (e *testEnv) registerAlice(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "Alice",
		"email":    "Alice@Example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

// loginAlice returns the access and refresh tokens from the session payload.
func (e *testEnv) loginAlice(t *testing.T, password string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := asMap(t, decode(t, w).Data)
	access, _ := data["accessToken"].(string)
	refresh, _ := data["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	return access, refresh
}

func TestRegisterEndpoint(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "Alice",
		"email":    "Alice@Example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	env := decode(t, w)
	require.True(t, env.Success)
	require.Equal(t, http.StatusCreated, env.StatusCode)

	data := asMap(t, env.Data)
	require.Equal(t, "alice", data["username"])
	require.Equal(t, "alice@example.com", data["email"])
	require.Equal(t, "user", data["role"])
	require.Equal(t, false, data["isEmailVerified"])

	// Secrets never leave the service layer.
	body := strings.ToLower(w.Body.String())
	require.NotContains(t, body, "password")
	require.NotContains(t, body, "hash")

	require.Len(t, e.pub.jobs, 1)
	require.Equal(t, tpl.VerifyEmail, e.pub.jobs[0].Template)
}

func TestRegisterValidationDetails(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "ab",
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	env := decode(t, w)
	require.False(t, env.Success)

	var details map[string]string
	require.NoError(t, json.Unmarshal(env.Errors, &details))
	require.Contains(t, details, "username")
	require.Contains(t, details, "email")
	require.Contains(t, details, "password")
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "other",
		"email":    "alice@example.com",
		"password": "password2",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	require.False(t, decode(t, w).Success)
}

func TestLoginSetsSessionAndCookies(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)

	w := e.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := asMap(t, decode(t, w).Data)
	access, _ := data["accessToken"].(string)
	refresh, _ := data["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice@example.com", user["email"])

	ac := responseCookie(t, w, "access_token")
	require.Equal(t, access, ac.Value)
	require.True(t, ac.HttpOnly)
	rc := responseCookie(t, w, "refresh_token")
	require.Equal(t, refresh, rc.Value)
	require.True(t, rc.HttpOnly)
}

func TestLoginFailures(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)

	w := e.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "nobody@example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodPost, "/api/auth/resend-email-verification"},
		{http.MethodPost, "/api/auth/change-password"},
		{http.MethodGet, "/api/auth/current-user"},
		{http.MethodPatch, "/api/auth/avatar"},
		{http.MethodGet, "/api/auth/users/search?q=alice"},
	}
	for _, rt := range routes {
		w := e.do(t, rt.method, rt.path, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
		require.False(t, decode(t, w).Success)
	}
}

func TestCurrentUserViaCookieAndBearer(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	access, _ := e.loginAlice(t, "password1")

	w := e.do(t, http.MethodGet, "/api/auth/current-user", nil, withCookie("access_token", access))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice@example.com", asMap(t, decode(t, w).Data)["email"])

	w = e.do(t, http.MethodGet, "/api/auth/current-user", nil, withBearer(access))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	_, refresh := e.loginAlice(t, "password1")

	w := e.do(t, http.MethodPost, "/api/auth/refresh-token", nil, withCookie("refresh_token", refresh))
	require.Equal(t, http.StatusOK, w.Code)
	data := asMap(t, decode(t, w).Data)
	rotated, _ := data["refreshToken"].(string)
	require.NotEmpty(t, rotated)
	require.NotEqual(t, refresh, rotated)
	require.Equal(t, rotated, responseCookie(t, w, "refresh_token").Value)

	// Replaying the consumed token, this time via the body, is rejected.
	w = e.do(t, http.MethodPost, "/api/auth/refresh-token", gin.H{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/refresh-token", gin.H{"refreshToken": rotated})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshWithoutTokenRejected(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/refresh-token", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/refresh-token", gin.H{"refreshToken": "garbage"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesRefreshAndClearsCookies(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	access, refresh := e.loginAlice(t, "password1")

	w := e.do(t, http.MethodPost, "/api/auth/logout", nil, withCookie("access_token", access))
	require.Equal(t, http.StatusOK, w.Code)

	ac := responseCookie(t, w, "access_token")
	require.Empty(t, ac.Value)
	require.Negative(t, ac.MaxAge)

	w = e.do(t, http.MethodPost, "/api/auth/refresh-token", gin.H{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyEmailOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	plain := e.pub.lastLinkToken(t, "VerifyURL")

	w := e.do(t, http.MethodGet, "/api/auth/verify-email/wrong-token", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/auth/verify-email/"+plain, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, asMap(t, decode(t, w).Data)["isEmailVerified"])

	// The link is one-shot.
	w = e.do(t, http.MethodGet, "/api/auth/verify-email/"+plain, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResendVerificationConflictOnceVerified(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	plain := e.pub.lastLinkToken(t, "VerifyURL")

	w := e.do(t, http.MethodGet, "/api/auth/verify-email/"+plain, nil)
	require.Equal(t, http.StatusOK, w.Code)

	access, _ := e.loginAlice(t, "password1")
	w = e.do(t, http.MethodPost, "/api/auth/resend-email-verification", nil, withBearer(access))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestForgotAndResetPasswordOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	_, refresh := e.loginAlice(t, "password1")

	w := e.do(t, http.MethodPost, "/api/auth/forgot-password", gin.H{"email": "nobody@example.com"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/forgot-password", gin.H{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, tpl.ForgotPassword, e.pub.jobs[len(e.pub.jobs)-1].Template)
	plain := e.pub.lastLinkToken(t, "ResetURL")

	w = e.do(t, http.MethodPost, "/api/auth/reset-password/bogus", gin.H{"newPassword": "newpassword1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/reset-password/"+plain, gin.H{"newPassword": "newpassword1"})
	require.Equal(t, http.StatusOK, w.Code)

	// The standing session died with the old password.
	w = e.do(t, http.MethodPost, "/api/auth/refresh-token", gin.H{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "password1"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	e.loginAlice(t, "newpassword1")
}

func TestChangePasswordOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	access, refresh := e.loginAlice(t, "password1")

	w := e.do(t, http.MethodPost, "/api/auth/change-password", gin.H{
		"oldPassword": "wrong",
		"newPassword": "newpassword1",
	}, withBearer(access))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/change-password", gin.H{
		"oldPassword": "password1",
		"newPassword": "newpassword1",
	}, withBearer(access))
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, responseCookie(t, w, "refresh_token").Value)

	w = e.do(t, http.MethodPost, "/api/auth/refresh-token", gin.H{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	e.loginAlice(t, "newpassword1")
}

func TestSearchEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	access, _ := e.loginAlice(t, "password1")

	w := e.do(t, http.MethodGet, "/api/auth/users/search", nil, withBearer(access))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Without a search backend configured the result set is empty, not an error.
	w = e.do(t, http.MethodGet, "/api/auth/users/search?q=alice", nil, withBearer(access))
	require.Equal(t, http.StatusOK, w.Code)
	var results []any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &results))
	require.Empty(t, results)
}

func TestAvatarUpload(t *testing.T) {
	e := newTestEnv(t)
	e.registerAlice(t)
	access, _ := e.loginAlice(t, "password1")

	w := e.do(t, http.MethodPatch, "/api/auth/avatar", nil, withBearer(access))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// A well-formed upload without object storage configured is a server error,
	// not a silent success.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not-really-a-png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPatch, "/api/auth/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
