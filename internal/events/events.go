// Package events defines the payloads the download engine emits toward the
// outer presentation layer (§6 of the spec: download-progress,
// download-complete, download-error).
package events

import (
	"encoding/json"
	"errors"
)

// Status values carried on a ProgressEvent.
const (
	StatusStarting    = "starting"
	StatusDownloading = "downloading"
	StatusPaused      = "paused"
	StatusCancelled   = "cancelled"
	StatusMerging     = "merging"
)

// SegmentProgress is the per-segment triple nested inside a ProgressEvent.
type SegmentProgress struct {
	ID         int   `json:"id"`
	Downloaded int64 `json:"downloaded"`
	Total      int64 `json:"total"`
}

// ProgressEvent is the "download-progress" event.
type ProgressEvent struct {
	ID         string            `json:"id"`
	Downloaded int64             `json:"downloaded"`
	Total      int64             `json:"total"`
	Speed      float64           `json:"speed"`
	Status     string            `json:"status"`
	Chunks     []SegmentProgress `json:"chunk_progress"`
}

// CompleteEvent is the "download-complete" event.
type CompleteEvent struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	TotalSize int64  `json:"total_size"`
}

// ErrorEvent is the "download-error" event. It is only emitted for failures
// that are not cancellations.
type ErrorEvent struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// MarshalJSON serializes Err as a plain string, since error values don't
// round-trip through encoding/json on their own.
func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type encoded struct {
		ID    string `json:"id"`
		Error string `json:"error,omitempty"`
	}
	out := encoded{ID: e.ID}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the string form produced by MarshalJSON.
func (e *ErrorEvent) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.ID = aux.ID
	e.Err = nil
	if aux.Error != "" {
		e.Err = errors.New(aux.Error)
	}
	return nil
}

// Sink is how the engine publishes events without depending on any
// particular transport (channel, SSE, in-process bus, ...). Implementations
// must not block the caller for long; a full channel should drop or log,
// never deadlock a worker.
type Sink interface {
	Publish(event any)
}

// ChanSink is the default Sink: a buffered channel that callers read
// through Events. Modeled on the teacher's own ProgressChan-based fan-out.
type ChanSink struct {
	ch chan any
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan any, buffer)}
}

// Publish sends the event, dropping it if the channel is full rather than
// blocking the worker that produced it.
func (s *ChanSink) Publish(event any) {
	select {
	case s.ch <- event:
	default:
	}
}

// Events returns the receive side of the channel.
func (s *ChanSink) Events() <-chan any {
	return s.ch
}

// Close closes the underlying channel. Callers must ensure no further
// Publish calls occur afterward.
func (s *ChanSink) Close() {
	close(s.ch)
}
