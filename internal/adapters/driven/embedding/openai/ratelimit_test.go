package openai

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Defaults(t *testing.T) {
	r := NewRateLimiter(0, 0)
	assert.NoError(t, r.Wait(context.Background()))
	assert.True(t, r.BackoffUntil().IsZero())
}

func TestRateLimiter_RecordRateLimit(t *testing.T) {
	r := NewRateLimiter(100, 10)

	r.RecordRateLimit(http.Header{})
	assert.WithinDuration(t, time.Now().Add(defaultBackoff), r.BackoffUntil(), time.Second)

	h := http.Header{}
	h.Set("Retry-After", "1")
	r.RecordRateLimit(h)
	assert.WithinDuration(t, time.Now().Add(defaultBackoff), r.BackoffUntil(), time.Second,
		"a shorter Retry-After does not shorten the backoff")
}

func TestRateLimiter_WaitHonoursCancel(t *testing.T) {
	r := NewRateLimiter(100, 10)
	h := http.Header{}
	h.Set("Retry-After", "60")
	r.RecordRateLimit(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}
