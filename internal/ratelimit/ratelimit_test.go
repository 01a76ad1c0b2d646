package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterSpacesActions(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first call does not wait")

	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSimpleRateLimiterContextCancel(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestSetDelayClampsMax(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 2*time.Second)
	r.SetDelay(5*time.Second, time.Second)

	min, max := r.Delays()
	assert.Equal(t, 5*time.Second, min)
	assert.Equal(t, 5*time.Second, max)
}

func TestAdaptiveRateLimiter(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, max := a.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delays()
	assert.Equal(t, 2700*time.Millisecond, min)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delays()
	assert.Equal(t, 2*time.Second, min, "never drops below the configured floor")
}

func TestHostLimiter(t *testing.T) {
	h := NewHostLimiter(time.Second, 2*time.Second)

	a := h.For("https://shop-a.com/p/1")
	assert.Same(t, a, h.For("https://shop-a.com/p/2"))
	assert.NotSame(t, a, h.For("https://shop-b.com/p/1"))
}

func TestTokenBucket(t *testing.T) {
	b := NewTokenBucketRateLimiter(2, time.Hour)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucketRefill(t *testing.T) {
	b := NewTokenBucketRateLimiter(1, 10*time.Millisecond)
	require.True(t, b.Allow())
	require.NoError(t, b.Wait(context.Background()))
}
