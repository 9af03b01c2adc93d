package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerSegmentLimit(t *testing.T) {
	assert.Equal(t, int64(250), PerSegmentLimit(1000, 4))
	assert.Equal(t, int64(0), PerSegmentLimit(1000, 0))
	assert.Equal(t, int64(0), PerSegmentLimit(0, 4))
}

func TestLimiter_UnlimitedNeverSleeps(t *testing.T) {
	l := New(func() int64 { return 0 })
	var slept time.Duration
	l.sleep = func(d time.Duration) { slept += d }

	l.AfterWrite(1 << 30)
	assert.Zero(t, slept)
}

func TestLimiter_SleepsWhenAheadOfBudget(t *testing.T) {
	limit := int64(100) // 100 bytes/sec
	l := New(func() int64 { return limit })

	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }
	l.windowStart = clock

	var slept time.Duration
	l.sleep = func(d time.Duration) { slept += d }

	// 100 bytes written instantly (elapsed ~0s) against a 100B/s budget
	// should trigger a ~1s sleep.
	l.AfterWrite(100)

	assert.Greater(t, slept, 900*time.Millisecond)
}

func TestLimiter_SkipsSubFiveMillisecondDelays(t *testing.T) {
	limit := int64(1_000_000)
	l := New(func() int64 { return limit })

	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }
	l.windowStart = clock

	var slept time.Duration
	l.sleep = func(d time.Duration) { slept += d }

	l.AfterWrite(10) // 10 bytes at 1MB/s is a sub-millisecond delay
	assert.Zero(t, slept)
}

func TestLimiter_ResetsWindowAfterOneSecond(t *testing.T) {
	limit := int64(1000)
	l := New(func() int64 { return limit })

	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }
	l.windowStart = clock
	l.sleep = func(time.Duration) {}

	l.AfterWrite(500)
	assert.Equal(t, int64(500), l.bytesInWindow)

	clock = clock.Add(1100 * time.Millisecond)
	l.AfterWrite(10)
	assert.Equal(t, int64(0), l.bytesInWindow)
}
