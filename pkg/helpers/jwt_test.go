package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestJWT(accessTTL, refreshTTL time.Duration) *JWTManager {
	return NewJWTManager("access-secret", "refresh-secret", accessTTL, refreshTTL)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestJWT(time.Hour, 2*time.Hour)

	tok, exp, err := m.GenerateAccessToken("u1", "a@x.com", "alice")
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	claims, err := m.ParseAccessToken(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)
	require.Equal(t, "alice", claims.Username)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := newTestJWT(time.Hour, 2*time.Hour)

	tok, _, err := m.GenerateRefreshToken("u1")
	require.NoError(t, err)

	claims, err := m.ParseRefreshToken(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
}

func TestRefreshTokensAreDistinctPerIssuance(t *testing.T) {
	m := newTestJWT(time.Hour, 2*time.Hour)

	// Rotation replaces the stored token; two issuances in the same second
	// must still differ.
	a, _, err := m.GenerateRefreshToken("u1")
	require.NoError(t, err)
	b, _, err := m.GenerateRefreshToken("u1")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m := newTestJWT(time.Hour, 2*time.Hour)

	access, _, err := m.GenerateAccessToken("u1", "a@x.com", "alice")
	require.NoError(t, err)
	refresh, _, err := m.GenerateRefreshToken("u1")
	require.NoError(t, err)

	// Signed with different secrets; cross-parsing must fail.
	_, err = m.ParseRefreshToken(access)
	require.Error(t, err)
	_, err = m.ParseAccessToken(refresh)
	require.Error(t, err)
}

func TestParseExpiredRefreshToken(t *testing.T) {
	m := newTestJWT(time.Hour, -time.Minute)

	tok, _, err := m.GenerateRefreshToken("u1")
	require.NoError(t, err)

	_, err = m.ParseRefreshToken(tok)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestParseMalformedToken(t *testing.T) {
	m := newTestJWT(time.Hour, time.Hour)

	_, err := m.ParseAccessToken("not.a.jwt")
	require.Error(t, err)
}

func TestParseWrongSecret(t *testing.T) {
	m := newTestJWT(time.Hour, time.Hour)
	tok, _, err := m.GenerateAccessToken("u1", "a@x.com", "alice")
	require.NoError(t, err)

	other := NewJWTManager("different-secret", "refresh-secret", time.Hour, time.Hour)
	_, err = other.ParseAccessToken(tok)
	require.Error(t, err)
}
