package application

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestGetCurrentUserReadThroughCache(t *testing.T) {
	s, r, _ := newTestService()
	mr := miniredis.RunT(t)
	s.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	prof := register(t, s, "alice", "alice@example.com", "password1")
	ctx := context.Background()

	first, err := s.GetCurrentUser(ctx, prof.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", first.Username)
	require.True(t, mr.Exists("user:profile:"+prof.ID))

	// A write that bypasses the service is invisible until the entry drops.
	r.users[prof.ID].Username = "renamed"
	second, err := s.GetCurrentUser(ctx, prof.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", second.Username)

	mr.Del("user:profile:" + prof.ID)
	third, err := s.GetCurrentUser(ctx, prof.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", third.Username)
}

func TestMutatingFlowsInvalidateCachedProfile(t *testing.T) {
	s, _, p := newTestService()
	mr := miniredis.RunT(t)
	s.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	prof := register(t, s, "alice", "alice@example.com", "password1")
	ctx := context.Background()

	_, err := s.GetCurrentUser(ctx, prof.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists("user:profile:"+prof.ID))

	// Verification flips a field the cached projection carries.
	plain := p.lastLinkToken(t, "VerifyURL")
	_, err = s.VerifyEmail(ctx, plain)
	require.NoError(t, err)
	require.False(t, mr.Exists("user:profile:"+prof.ID))

	got, err := s.GetCurrentUser(ctx, prof.ID)
	require.NoError(t, err)
	require.True(t, got.IsEmailVerified)
}

func TestCacheDownDoesNotBreakReads(t *testing.T) {
	s, _, _ := newTestService()
	mr := miniredis.RunT(t)
	s.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	prof := register(t, s, "alice", "alice@example.com", "password1")
	mr.Close()

	got, err := s.GetCurrentUser(context.Background(), prof.ID)
	require.NoError(t, err)
	require.Equal(t, prof.ID, got.ID)
}
