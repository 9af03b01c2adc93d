// Package transfer implements components F and G: the chunked and
// single-stream transferors. Grounded on the reference implementation's
// downloader.rs (download_chunked/download_single) and the teacher's
// internal/engine/single/downloader.go plus the buffer-pool and
// http.Transport tuning idioms from internal/downloader/concurrent.go.
package transfer

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by a segment or single-stream worker once the
// handle's cancelled flag is observed. It is never wrapped with other
// context so callers can match it with errors.Is, and its message contains
// "cancelled" per the control surface's substring-matching rule (§4.J).
var ErrCancelled = errors.New("download cancelled")

// HttpStatusError is the §7 HttpStatusError kind: a segment response with
// a status other than 200/206 (or a 200 to a resumed segment's range
// request), or a non-2xx single-stream response.
type HttpStatusError struct {
	StatusCode int
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// TransportError wraps a stream read error (§7 TransportError).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IoError wraps a file create/seek/write/flush/rename error (§7 IoError).
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("io error: %v", e.Err) }
func (e *IoError) Unwrap() error { return e.Err }
