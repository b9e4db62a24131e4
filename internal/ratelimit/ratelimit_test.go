package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilLockerGrantsLock(t *testing.T) {
	var l *Locker
	assert.False(t, l.Enabled())

	token, ok, err := l.TryLock(context.Background(), "scheduler:renewal_sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.Release(context.Background(), "scheduler:renewal_sweep", token))
}

func TestLockerValidatesArguments(t *testing.T) {
	var l *Locker
	_, _, err := l.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyLockKey)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidLockTTL)
}

func TestNilTokenBucket(t *testing.T) {
	var b *TokenBucket
	_, err := b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrLimiterNotConfigured)
}

func TestDecide(t *testing.T) {
	d := decide(int64(1), "3.5", 1)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
	assert.Zero(t, d.RetryAfter)

	d = decide(int64(0), "0.5", 0.5)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(0.5, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}

func TestWalletLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, TransferPerSecond: 1, TransferBurst: 1}}
	l := NewWalletLimiter(cfg, nil, zap.NewNop())
	assert.Nil(t, l)
	assert.False(t, l.Enabled())

	d, err := l.Allow(context.Background(), snowflake.ID(42))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
