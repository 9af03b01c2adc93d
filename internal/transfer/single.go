package transfer

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/teal33t/dlm/internal/events"
	"github.com/teal33t/dlm/internal/filename"
	"github.com/teal33t/dlm/internal/handle"
)

// SingleJob is the input to RunSingle: the fallback path used when range
// requests are unsupported or size is unknown (§4.G). Grounded on the
// teacher's internal/engine/single/downloader.go, generalized to emit the
// spec's synthetic 100ms progress snapshots instead of writing to a
// TUI-polled struct.
type SingleJob struct {
	ID         string
	URL        string
	TargetPath string
	Handle     *handle.Handle
	Headers    map[string]string
	Client     *http.Client
	Sink       events.Sink
}

// RunSingle streams the whole response body into TargetPath (truncating
// any existing file), returning the path the file was actually written to.
// There are no segment records with resumable semantics: progress is
// reported under segment id 0.
func RunSingle(ctx context.Context, job *SingleJob) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}

	resp, err := job.Client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HttpStatusError{StatusCode: resp.StatusCode}
	}

	buf := getBuffer()
	defer putBuffer(buf)

	// Neither the URL nor the response headers always carry an extension;
	// when one is missing, sniff it from the leading bytes of the body
	// before creating the output file.
	targetPath := job.TargetPath
	var n int
	if filepath.Ext(targetPath) == "" {
		n, err = io.ReadFull(resp.Body, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return "", &TransportError{Err: err}
		}
		err = nil
		if ext := filename.SniffExtension(buf[:n]); ext != "" {
			targetPath = filename.WithExtension(targetPath, ext)
		}
	}

	out, err := os.Create(targetPath)
	if err != nil {
		return "", &IoError{Err: err}
	}

	success := false
	defer func() {
		_ = out.Close()
		if !success {
			_ = os.Remove(targetPath)
		}
	}()

	var written int64
	var lastTotal int64
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	if n > 0 {
		if _, werr := out.Write(buf[:n]); werr != nil {
			return "", &IoError{Err: werr}
		}
		written += int64(n)
		job.Handle.AddSegmentProgress(0, int64(n))
	}

	emit := func(status string) {
		if job.Sink == nil {
			return
		}
		var speed float64
		if status != events.StatusPaused {
			speed = float64(written-lastTotal) * 10
		}
		lastTotal = written
		job.Sink.Publish(events.ProgressEvent{
			ID:         job.ID,
			Downloaded: written,
			Speed:      speed,
			Status:     status,
			Chunks:     []events.SegmentProgress{{ID: 0, Downloaded: written}},
		})
	}

	for {
		select {
		case <-ticker.C:
			if job.Handle.Paused() {
				emit(events.StatusPaused)
			} else {
				emit(events.StatusDownloading)
			}
		default:
		}

		if job.Handle.Cancelled() {
			return "", ErrCancelled
		}
		for job.Handle.Paused() {
			time.Sleep(100 * time.Millisecond)
			if job.Handle.Cancelled() {
				return "", ErrCancelled
			}
		}

		rn, readErr := resp.Body.Read(buf)
		if rn > 0 {
			if _, werr := out.Write(buf[:rn]); werr != nil {
				return "", &IoError{Err: werr}
			}
			written += int64(rn)
			job.Handle.AddSegmentProgress(0, int64(rn))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return "", &TransportError{Err: readErr}
		}
	}

	if err := out.Sync(); err != nil {
		return "", &IoError{Err: err}
	}
	success = true

	if job.Sink != nil {
		job.Sink.Publish(events.CompleteEvent{
			ID:        job.ID,
			Path:      targetPath,
			Filename:  filepath.Base(targetPath),
			TotalSize: written,
		})
	}
	return targetPath, nil
}
