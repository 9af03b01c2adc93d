package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/teal33t/dlm/internal/events"
	"github.com/teal33t/dlm/internal/handle"
	"github.com/teal33t/dlm/internal/ledger"
	"github.com/teal33t/dlm/internal/ratelimit"
	"github.com/teal33t/dlm/internal/reporter"
	"github.com/teal33t/dlm/internal/utils"
)

// TempDirName returns the temp directory for a job per §6:
// <parent-of-target>/.dlm_temp_<id>/
func TempDirName(targetPath, id string) string {
	return filepath.Join(filepath.Dir(targetPath), ".dlm_temp_"+id)
}

// ChunkedJob is the input to RunChunked: job handle, URL, target path,
// total size, segment count, and an optional pre-existing segment list
// for resume (§4.F).
type ChunkedJob struct {
	ID               string
	URL              string
	TargetPath       string
	TotalSize        int64
	NumConnections   int
	ExistingSegments []ledger.Segment // nil for a fresh download
	Handle           *handle.Handle
	Headers          map[string]string
	Client           *http.Client
	Sink             events.Sink
	Ledger           *ledger.Ledger
}

// segmentResult is the outcome of one segment worker.
type segmentResult struct {
	id       int
	tempPath string
	err      error
}

// RunChunked executes the chunked transferor algorithm end to end and
// returns the final segment records (for ledger persistence) on success.
func RunChunked(ctx context.Context, job *ChunkedJob) ([]ledger.Segment, error) {
	var plan []ledger.SegmentTask
	if len(job.ExistingSegments) > 0 {
		plan = ledger.PlanFromSegments(job.ExistingSegments)
	} else {
		plan = ledger.PlanFresh(job.TotalSize, job.NumConnections)
	}

	tempDir := TempDirName(job.TargetPath, job.ID)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, &IoError{Err: err}
	}

	segmentSizes := make([]int64, len(plan))
	for i, t := range plan {
		segmentSizes[i] = t.End - t.Start + 1
	}

	reporterCtx, stopReporter := context.WithCancel(ctx)
	rep := &reporter.Reporter{
		JobID:        job.ID,
		Handle:       job.Handle,
		Ledger:       job.Ledger,
		Sink:         job.Sink,
		TotalSize:    job.TotalSize,
		SegmentSizes: segmentSizes,
	}
	reporterDone := make(chan struct{})
	go func() {
		rep.Run(reporterCtx)
		close(reporterDone)
	}()

	results := make([]segmentResult, 0, len(plan))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, task := range plan {
		already := task.AlreadyDownloaded
		if already >= task.End-task.Start+1 {
			// Already whole: no worker needed, but it still contributes a
			// temp path to the merge step.
			mu.Lock()
			results = append(results, segmentResult{id: task.ID, tempPath: segPath(tempDir, task.ID)})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(t ledger.SegmentTask) {
			defer wg.Done()
			limiter := ratelimit.New(func() int64 {
				return ratelimit.PerSegmentLimit(job.Handle.SpeedLimit(), len(plan))
			})
			path, err := downloadSegment(ctx, job.Client, job.URL, job.Headers, tempDir, t, job.Handle, limiter)
			mu.Lock()
			results = append(results, segmentResult{id: t.ID, tempPath: path, err: err})
			mu.Unlock()
		}(task)
	}

	wg.Wait()
	stopReporter()
	<-reporterDone

	var firstErr error
	for _, r := range results {
		if r.err != nil && firstErr == nil && !job.Handle.Cancelled() {
			firstErr = r.err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	if job.Handle.Cancelled() {
		if job.Sink != nil {
			job.Sink.Publish(events.ProgressEvent{
				ID:     job.ID,
				Status: events.StatusCancelled,
				Total:  job.TotalSize,
			})
		}
		return nil, ErrCancelled
	}

	if job.Sink != nil {
		job.Sink.Publish(events.ProgressEvent{
			ID:     job.ID,
			Status: events.StatusMerging,
			Total:  job.TotalSize,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].id < results[j].id })
	finalSegments, err := mergeSegments(job.TargetPath, tempDir, plan, results)
	if err != nil {
		return nil, err
	}

	_ = os.RemoveAll(tempDir)

	if job.Sink != nil {
		job.Sink.Publish(events.CompleteEvent{
			ID:        job.ID,
			Path:      job.TargetPath,
			Filename:  filepath.Base(job.TargetPath),
			TotalSize: job.TotalSize,
		})
	}

	return finalSegments, nil
}

func segPath(tempDir string, id int) string {
	return filepath.Join(tempDir, "seg_"+strconv.Itoa(id))
}

// downloadSegment implements the per-segment worker algorithm (§4.F).
func downloadSegment(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, tempDir string, task ledger.SegmentTask, h *handle.Handle, limiter *ratelimit.Limiter) (string, error) {
	tempPath := segPath(tempDir, task.ID)

	actualStart := task.Start + task.AlreadyDownloaded
	if actualStart > task.End {
		return tempPath, nil // already whole
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	for k, v := range headers {
		if k != "Range" {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", actualStart, task.End))

	resp, err := client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", &HttpStatusError{StatusCode: resp.StatusCode}
	}
	// Open question resolution (SPEC_FULL.md): a 200 on a resumed segment
	// means the server ignored our Range header; writing the full body at
	// actualStart would silently corrupt the file, so fail instead.
	if resp.StatusCode == http.StatusOK && task.AlreadyDownloaded > 0 {
		return "", &HttpStatusError{StatusCode: http.StatusOK}
	}

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &IoError{Err: err}
	}
	defer func() { _ = f.Close() }()

	if task.AlreadyDownloaded > 0 {
		if _, err := f.Seek(task.AlreadyDownloaded, io.SeekStart); err != nil {
			return "", &IoError{Err: err}
		}
	}

	buf := getBuffer()
	defer putBuffer(buf)

	for {
		if h.Cancelled() {
			return tempPath, ErrCancelled
		}
		for h.Paused() {
			time.Sleep(100 * time.Millisecond)
			if h.Cancelled() {
				return tempPath, ErrCancelled
			}
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return "", &IoError{Err: werr}
			}
			h.AddSegmentProgress(task.ID, int64(n))
			limiter.AfterWrite(int64(n))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return "", &TransportError{Err: readErr}
		}
	}

	if err := f.Sync(); err != nil {
		return "", &IoError{Err: err}
	}
	return tempPath, nil
}

// mergeSegments concatenates temp segment files, in ascending id order,
// into the final destination file, then returns the final Segment Records
// for ledger persistence.
func mergeSegments(targetPath, tempDir string, plan []ledger.SegmentTask, results []segmentResult) ([]ledger.Segment, error) {
	out, err := os.Create(targetPath)
	if err != nil {
		return nil, &IoError{Err: err}
	}
	defer func() { _ = out.Close() }()

	byID := make(map[int]string, len(results))
	for _, r := range results {
		byID[r.id] = r.tempPath
	}

	segments := make([]ledger.Segment, len(plan))
	for i, t := range plan {
		path, ok := byID[t.ID]
		if !ok {
			path = segPath(tempDir, t.ID)
		}
		if err := appendFile(out, path); err != nil {
			return nil, err
		}
		segments[i] = ledger.Segment{ID: t.ID, Start: t.Start, End: t.End, Downloaded: t.End - t.Start + 1}
	}

	if err := out.Sync(); err != nil {
		return nil, &IoError{Err: err}
	}
	utils.Debug("chunked transfer: merged %d segments into %s", len(plan), targetPath)
	return segments, nil
}

func appendFile(out *os.File, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return &IoError{Err: err}
	}
	defer func() { _ = in.Close() }()

	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return &IoError{Err: err}
	}
	return nil
}
