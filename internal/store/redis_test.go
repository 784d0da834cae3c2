package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-scout/internal/model"
)

func newTestRedis(t *testing.T) Store {
	t.Helper()
	srv := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRedisStore(t *testing.T) {
	storeTestSuite(t, newTestRedis)
}

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "profile:alice", profileKey("alice"))
	assert.Equal(t, "research:550e8400-e29b-41d4-a716-446655440000",
		jobKey("550e8400-e29b-41d4-a716-446655440000"))
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestRedisProfileTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), "redis://"+srv.Addr(), WithProfileTTL(time.Hour))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.PutProfile(ctx, model.Profile{Identifier: "alice", Name: "Alice", FetchedAt: time.Now().UTC()}))
	assert.Equal(t, time.Hour, srv.TTL(profileKey("alice")))

	// Expired profiles behave as cache misses.
	srv.FastForward(2 * time.Hour)
	_, err = s.GetProfile(ctx, "alice")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// Jobs never expire.
	job, err := s.CreateJob(ctx, "bob", "Bob")
	require.NoError(t, err)
	assert.Zero(t, srv.TTL(jobKey(job.ID)))
}
