package transfer

import (
	"net/http"
	"sync"
	"time"
)

// Tuning constants lifted from the teacher's internal/engine/types/config.go
// and internal/downloader/concurrent.go (MaxIdleConnsPerHost sized for many
// simultaneous segment connections to one host).
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 32
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 10 * time.Second
	defaultKeepAlive           = 30 * time.Second

	// WorkerBufferSize is the per-read buffer size for segment and
	// single-stream copy loops.
	WorkerBufferSize = 512 * 1024
)

// NewHTTPClient builds an *http.Client tuned for many concurrent ranged GET
// requests to the same host. No proxy support (dropped per spec Non-goal);
// no response timeout since reads are long-lived streams.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}
	return &http.Client{
		Timeout:   0,
		Transport: transport,
	}
}

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, WorkerBufferSize)
		return &b
	},
}

func getBuffer() []byte {
	return *(bufferPool.Get().(*[]byte))
}

func putBuffer(buf []byte) {
	bufferPool.Put(&buf)
}
