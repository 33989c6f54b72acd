package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiharness/sdk/auth"
	"github.com/apiharness/sdk/types"
)

func setupTestStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedis(RedisOptions{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestRedisPutAndGet(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	token := &auth.Token{
		AccessToken:  "t1",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, store.Put(ctx, "bearer:alice", token, time.Hour))

	got, err := store.Get(ctx, "bearer:alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
}

func TestRedisMissReturnsNil(t *testing.T) {
	store, _ := setupTestStore(t)

	got, err := store.Get(context.Background(), "bearer:nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisTTLEviction(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	token := &auth.Token{AccessToken: "t1", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Put(ctx, "bearer:alice", token, time.Minute))

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "bearer:alice")
	require.NoError(t, err)
	assert.Nil(t, got, "entry should expire with its TTL")
}

func TestRedisNonPositiveTTLDrops(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	token := &auth.Token{AccessToken: "t1"}
	require.NoError(t, store.Put(ctx, "k", token, time.Hour))
	require.NoError(t, store.Put(ctx, "k", token, 0))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	token := &auth.Token{AccessToken: "t1"}
	require.NoError(t, store.Put(ctx, "k", token, time.Hour))
	require.NoError(t, store.Delete(ctx, "k"))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisWithClient(client, "custom:")
	ctx := context.Background()

	token := &auth.Token{AccessToken: "t1"}
	require.NoError(t, store.Put(ctx, "bearer:alice", token, time.Hour))

	assert.True(t, mr.Exists("custom:bearer:alice"))
}

func TestRedisConnectFailure(t *testing.T) {
	_, err := NewRedis(RedisOptions{
		URL:            "redis://127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestRedisBadURL(t *testing.T) {
	_, err := NewRedis(RedisOptions{URL: "::not-a-url::"})
	require.Error(t, err)
}

func TestRedisStrategyIntegration(t *testing.T) {
	store, _ := setupTestStore(t)

	clock := time.Now
	source := auth.NewStaticTokenSource("shared", time.Hour, clock)

	first := auth.NewBearer("alice", source, auth.WithTokenCache(store))
	second := auth.NewBearer("alice", source, auth.WithTokenCache(store))

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, first.Authenticate(context.Background(), req))

	req = types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, second.Authenticate(context.Background(), req))

	obtains, _ := source.Calls()
	assert.Equal(t, 1, obtains, "second strategy should reuse the stored token")
}
