// Package handle implements component D: the in-memory control block
// shared between control operations and worker tasks. Grounded on the
// reference implementation's state.rs DownloadHandle (cancelled, paused,
// chunk_downloaded, speed_limit) and the teacher's ActiveTask atomics.
package handle

import "sync/atomic"

// Handle is the in-memory control block for one active job. All fields are
// individually mutable without locking: cancelled/paused use
// sequential-consistency semantics (the default for sync/atomic); segment
// counters are plain sync/atomic values too, and no ordering between
// counters is relied on.
type Handle struct {
	ID string

	cancelled atomic.Bool
	paused    atomic.Bool
	speedCap  atomic.Int64 // bytes/second, 0 = unlimited

	segments []atomic.Int64 // segment_downloaded, one per segment
}

// New creates a Handle for a job with numSegments segment counters, each
// seeded from initial (nil or short slices default remaining entries to
// zero).
func New(id string, numSegments int, initial []int64) *Handle {
	h := &Handle{
		ID:       id,
		segments: make([]atomic.Int64, numSegments),
	}
	for i := 0; i < numSegments && i < len(initial); i++ {
		h.segments[i].Store(initial[i])
	}
	return h
}

// Cancel sets the cancelled flag.
func (h *Handle) Cancel() { h.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// SetPaused sets or clears the paused flag.
func (h *Handle) SetPaused(paused bool) { h.paused.Store(paused) }

// Paused reports the current paused state.
func (h *Handle) Paused() bool { return h.paused.Load() }

// SetSpeedLimit updates the shared speed cap in bytes/second; 0 means
// unlimited. Changing it mid-download reshapes the next measurement window
// of every active segment (see internal/ratelimit).
func (h *Handle) SetSpeedLimit(bytesPerSecond int64) { h.speedCap.Store(bytesPerSecond) }

// SpeedLimit returns the current speed cap.
func (h *Handle) SpeedLimit() int64 { return h.speedCap.Load() }

// NumSegments returns the number of segment counters this handle tracks.
func (h *Handle) NumSegments() int { return len(h.segments) }

// AddSegmentProgress adds n bytes to segment id's counter. Safe for
// concurrent use by the single worker that owns this segment; the reporter
// only reads.
func (h *Handle) AddSegmentProgress(id int, n int64) {
	if id < 0 || id >= len(h.segments) {
		return
	}
	h.segments[id].Add(n)
}

// SegmentProgress returns the current value of segment id's counter.
func (h *Handle) SegmentProgress(id int) int64 {
	if id < 0 || id >= len(h.segments) {
		return 0
	}
	return h.segments[id].Load()
}

// Snapshot returns a copy of every segment counter's current value, in
// segment-id order, for the reporter to aggregate.
func (h *Handle) Snapshot() []int64 {
	out := make([]int64, len(h.segments))
	for i := range h.segments {
		out[i] = h.segments[i].Load()
	}
	return out
}

// TotalDownloaded sums every segment counter using saturating arithmetic,
// so a transient non-monotonic read across counters can never overflow
// into a bogus total.
func (h *Handle) TotalDownloaded() int64 {
	var total int64
	for i := range h.segments {
		v := h.segments[i].Load()
		next := total + v
		if next < total { // overflow guard
			next = 1<<63 - 1
		}
		total = next
	}
	return total
}
