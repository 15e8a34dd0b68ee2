package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTL_GetPut(t *testing.T) {

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := NewTTL(5 * time.Minute).WithClock(clock)

	_, ok := c.Get("BTC-1")
	assert.False(t, ok)

	c.Put("BTC-1", Values{"rsi": 25})

	got, ok := c.Get("BTC-1")
	assert.True(t, ok)
	assert.Equal(t, 25.0, got["rsi"])

	// entry goes stale at exactly the ttl
	now = now.Add(5 * time.Minute)
	_, ok = c.Get("BTC-1")
	assert.False(t, ok)
}

func TestTTL_LazyEviction(t *testing.T) {

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := NewTTL(time.Minute).WithClock(clock)

	c.Put("a", Values{"v": 1})
	c.Put("b", Values{"v": 2})
	assert.Equal(t, 2, c.Size())

	// stale entries linger until the next write
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, c.Size())

	c.Put("c", Values{"v": 3})
	assert.Equal(t, 1, c.Size())
}

func TestBucketKey(t *testing.T) {

	t0 := time.Date(2024, 5, 1, 10, 0, 10, 0, time.UTC)

	// same bucket within the minute
	assert.Equal(t,
		BucketKey("BTC", t0, time.Minute),
		BucketKey("BTC", t0.Add(30*time.Second), time.Minute))

	// different bucket across the minute boundary
	assert.NotEqual(t,
		BucketKey("BTC", t0, time.Minute),
		BucketKey("BTC", t0.Add(time.Minute), time.Minute))

	// different symbol never collides
	assert.NotEqual(t,
		BucketKey("BTC", t0, time.Minute),
		BucketKey("ETH", t0, time.Minute))
}
