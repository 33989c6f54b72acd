package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/types"
)

func newBearerForTest(t *testing.T, ttl time.Duration) (*Bearer, *StaticTokenSource, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	source := NewStaticTokenSource("bearer", ttl, clock.Now)
	strategy := NewBearer("alice", source, WithClock(clock.Now))
	return strategy, source, clock
}

func TestBearerObtainsOnFirstUse(t *testing.T) {
	strategy, source, _ := newBearerForTest(t, time.Hour)

	assert.Equal(t, StateUninitialized, strategy.State())
	assert.False(t, strategy.IsValid())

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))

	assert.Equal(t, "Bearer bearer-token-1", req.Header("Authorization"))
	assert.Equal(t, StateValid, strategy.State())

	obtains, refreshes := source.Calls()
	assert.Equal(t, 1, obtains)
	assert.Equal(t, 0, refreshes)
}

func TestBearerReusesValidToken(t *testing.T) {
	strategy, source, _ := newBearerForTest(t, time.Hour)

	for i := 0; i < 5; i++ {
		req := types.NewRequest("GET", "https://api.example.com", "/users")
		require.NoError(t, strategy.Authenticate(context.Background(), req))
		assert.Equal(t, "Bearer bearer-token-1", req.Header("Authorization"))
	}

	obtains, refreshes := source.Calls()
	assert.Equal(t, 1, obtains)
	assert.Equal(t, 0, refreshes)
}

func TestBearerRefreshesInsideBufferWindow(t *testing.T) {
	strategy, source, clock := newBearerForTest(t, time.Hour)

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))
	require.True(t, strategy.IsValid())

	// Move inside the buffer window: 4 minutes short of expiry with the
	// default 5 minute buffer.
	clock.Advance(56 * time.Minute)
	assert.False(t, strategy.IsValid())
	assert.Equal(t, StateExpiring, strategy.State())

	req = types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))

	assert.Equal(t, "Bearer bearer-token-2", req.Header("Authorization"))
	assert.Equal(t, StateValid, strategy.State())

	obtains, refreshes := source.Calls()
	assert.Equal(t, 1, obtains)
	assert.Equal(t, 1, refreshes)
}

func TestBearerRenewsExpiredToken(t *testing.T) {
	strategy, source, clock := newBearerForTest(t, time.Hour)

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, StateInvalid, strategy.State())

	req = types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))
	assert.Equal(t, "Bearer bearer-token-2", req.Header("Authorization"))

	obtains, refreshes := source.Calls()
	assert.Equal(t, 1, obtains)
	assert.Equal(t, 1, refreshes)
}

func TestBearerCustomExpiryBuffer(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	source := NewStaticTokenSource("bearer", time.Hour, clock.Now)
	strategy := NewBearer("alice", source,
		WithClock(clock.Now), WithExpiryBuffer(10*time.Minute))

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))

	// 9 minutes before expiry is already inside a 10 minute buffer.
	clock.Advance(51 * time.Minute)
	assert.Equal(t, StateExpiring, strategy.State())
}

func TestBearerFailsWithoutSource(t *testing.T) {
	strategy := NewBearer("alice", nil)

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	err := strategy.Authenticate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrNoCredentials)

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindAuthentication, apiErr.Kind)
	assert.Empty(t, req.Header("Authorization"))
}

func TestBearerRefreshFailure(t *testing.T) {
	strategy, source, clock := newBearerForTest(t, time.Hour)

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))

	clock.Advance(56 * time.Minute)
	source.FailNext(1)

	req = types.NewRequest("GET", "https://api.example.com", "/users")
	err := strategy.Authenticate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrTokenRefreshFailed)

	// The next attempt succeeds and recovers the strategy.
	req = types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))
	assert.Equal(t, StateValid, strategy.State())
}

func TestBearerWithPreSuppliedToken(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	strategy := NewBearerWithToken("fixed-token", clock.Now().Add(time.Hour),
		WithClock(clock.Now))

	require.True(t, strategy.IsValid())

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, strategy.Authenticate(context.Background(), req))
	assert.Equal(t, "Bearer fixed-token", req.Header("Authorization"))

	// Without a source the expired token cannot be renewed.
	clock.Advance(2 * time.Hour)
	err := strategy.Authenticate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrTokenRefreshFailed)
}

func TestBearerSharesTokenThroughCache(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	cache := newMapTokenCache()
	source := NewStaticTokenSource("bearer", time.Hour, clock.Now)

	first := NewBearer("alice", source, WithClock(clock.Now), WithTokenCache(cache))
	second := NewBearer("alice", source, WithClock(clock.Now), WithTokenCache(cache))

	req := types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, first.Authenticate(context.Background(), req))

	req = types.NewRequest("GET", "https://api.example.com", "/users")
	require.NoError(t, second.Authenticate(context.Background(), req))
	assert.Equal(t, "Bearer bearer-token-1", req.Header("Authorization"))

	obtains, refreshes := source.Calls()
	assert.Equal(t, 1, obtains, "second strategy should adopt the cached token")
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, 1, cache.puts)
}

func TestBearerStateMachine(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	buffer := 5 * time.Minute

	tests := []struct {
		name      string
		expiresIn time.Duration
		want      TokenState
	}{
		{"well before buffer", time.Hour, StateValid},
		{"exactly at buffer edge", buffer, StateExpiring},
		{"inside buffer", 3 * time.Minute, StateExpiring},
		{"at expiry", 0, StateInvalid},
		{"past expiry", -time.Minute, StateInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(start)
			strategy := NewBearerWithToken("t", start.Add(tt.expiresIn),
				WithClock(clock.Now), WithExpiryBuffer(buffer))
			assert.Equal(t, tt.want, strategy.State())
		})
	}
}
