package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetPasswordHashes(t *testing.T) {
	u := &User{}
	require.NoError(t, u.SetPassword("s3cret-pass"))

	require.NotEqual(t, "s3cret-pass", u.PasswordHash)
	require.True(t, strings.HasPrefix(u.PasswordHash, "$2"))
	require.True(t, u.ComparePassword("s3cret-pass"))
	require.False(t, u.ComparePassword("wrong"))
}

func TestMarkEmailVerifiedClearsTokenPair(t *testing.T) {
	u := &User{}
	u.SetEmailVerificationToken("abcd", time.Now().Add(20*time.Minute))
	require.NotNil(t, u.EmailVerificationTokenHash)
	require.NotNil(t, u.EmailVerificationExpiry)

	u.MarkEmailVerified()
	require.True(t, u.IsEmailVerified)
	require.Nil(t, u.EmailVerificationTokenHash)
	require.Nil(t, u.EmailVerificationExpiry)
}

func TestForgotPasswordTokenPairMovesTogether(t *testing.T) {
	u := &User{}
	u.SetForgotPasswordToken("ffff", time.Now().Add(20*time.Minute))
	require.NotNil(t, u.ForgotPasswordTokenHash)
	require.NotNil(t, u.ForgotPasswordExpiry)

	u.ClearForgotPasswordToken()
	require.Nil(t, u.ForgotPasswordTokenHash)
	require.Nil(t, u.ForgotPasswordExpiry)
}

func TestRoleValid(t *testing.T) {
	require.True(t, RoleUser.Valid())
	require.True(t, RoleAdmin.Valid())
	require.False(t, Role("root").Valid())
}
