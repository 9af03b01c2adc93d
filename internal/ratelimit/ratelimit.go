// Package ratelimit implements component H: a per-segment sliding-window
// pacer, grounded directly on the reference implementation's downloader.rs
// throttle block (chunk_limit = speed_limit/num_chunks, reset every
// second, sub-5ms delays skipped). This is deliberately NOT a token
// bucket: spec.md §4.H and §9 call out this exact imprecise scheme as
// intentional, so golang.org/x/time/rate would fight the contract rather
// than implement it.
package ratelimit

import (
	"time"
)

// Limiter paces one segment worker against a shared per-segment byte
// budget. Create one with New; the zero value has no limit function and
// is not usable.
type Limiter struct {
	limitBytesPerSec func() int64 // reads the live per-segment cap
	windowStart      time.Time
	bytesInWindow    int64
	sleep            func(time.Duration)
	now              func() time.Time
}

// New creates a Limiter whose per-segment budget is computed on demand by
// limitFn (so a mid-download change to the job's global cap is picked up
// on the very next call, per spec).
func New(limitFn func() int64) *Limiter {
	return &Limiter{
		limitBytesPerSec: limitFn,
		windowStart:      time.Now(),
		sleep:            time.Sleep,
		now:              time.Now,
	}
}

// PerSegmentLimit computes global_limit / num_segments; 0 (unlimited) if
// num_segments <= 0.
func PerSegmentLimit(globalLimit int64, numSegments int) int64 {
	if numSegments <= 0 {
		return 0
	}
	return globalLimit / int64(numSegments)
}

// AfterWrite is called after each buffer write during a segment transfer.
// It accounts the written bytes, and sleeps if the segment is ahead of its
// budget, per §4.H:
//  1. bytes_in_window += n
//  2. elapsed = now - window_start
//  3. expected = bytes_in_window / per_segment_limit
//  4. if expected > elapsed, sleep (expected-elapsed)*1000ms when > 5ms
//  5. if elapsed >= 1s, reset the window
func (l *Limiter) AfterWrite(n int64) {
	limit := l.limitBytesPerSec()
	if limit <= 0 {
		return // unlimited
	}

	l.bytesInWindow += n
	now := l.now()
	elapsed := now.Sub(l.windowStart).Seconds()

	expected := float64(l.bytesInWindow) / float64(limit)
	if expected > elapsed {
		delay := (expected - elapsed) * 1000
		if delay > 5 {
			l.sleep(time.Duration(delay) * time.Millisecond)
		}
	}

	if elapsed >= 1.0 {
		l.windowStart = l.now()
		l.bytesInWindow = 0
	}
}
