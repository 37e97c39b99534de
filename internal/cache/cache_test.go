package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestGetSetJSON(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()

	var got payload
	found, err := GetJSON(ctx, rdb, StreamCodeKey("ABCD"), &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(ctx, rdb, StreamCodeKey("ABCD"), payload{Code: "ABCD", Title: "t"}, time.Minute))
	assert.True(t, mr.Exists("stream_code:ABCD"))

	found, err = GetJSON(ctx, rdb, StreamCodeKey("ABCD"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Code: "ABCD", Title: "t"}, got)

	mr.FastForward(2 * time.Minute)
	found, err = GetJSON(ctx, rdb, StreamCodeKey("ABCD"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNilClientIsNoop(t *testing.T) {
	ctx := context.Background()

	var got payload
	found, err := GetJSON(ctx, nil, "k", &got)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetJSON(ctx, nil, "k", got, time.Minute))
	Invalidate(ctx, nil, "k")
}

func TestBoundedTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		ceiling   time.Duration
		expiresAt time.Time
		want      time.Duration
	}{
		{"far expiry uses ceiling", 10 * time.Minute, now.Add(24 * time.Hour), 10 * time.Minute},
		{"near expiry uses remaining", 10 * time.Minute, now.Add(time.Minute), time.Minute},
		{"already expired", 10 * time.Minute, now, 0},
		{"caching disabled", 0, now.Add(time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BoundedTTL(tt.ceiling, now, tt.expiresAt))
		})
	}
}

func TestNewClient_ParsesURL(t *testing.T) {
	rdb, err := NewClient("redis://localhost:6390/2")
	require.NoError(t, err)
	defer func() { _ = rdb.Close() }()
	assert.Equal(t, "localhost:6390", rdb.Options().Addr)
	assert.Equal(t, 2, rdb.Options().DB)

	_, err = NewClient("redis://%zz")
	assert.Error(t, err)
}
