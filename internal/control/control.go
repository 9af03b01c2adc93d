// Package control implements component J: the externally invocable
// surface that ties together the ledger, settings, prober, handles, and
// transferors. Grounded on the teacher's internal/core.DownloadService
// interface (List/Add/Pause/Resume/Delete/StreamEvents shape) and the
// reference implementation's commands.rs, which exposes the same
// operations over a Tauri IPC boundary.
package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teal33t/dlm/internal/config"
	"github.com/teal33t/dlm/internal/events"
	"github.com/teal33t/dlm/internal/filename"
	"github.com/teal33t/dlm/internal/handle"
	"github.com/teal33t/dlm/internal/ledger"
	"github.com/teal33t/dlm/internal/probe"
	"github.com/teal33t/dlm/internal/transfer"
	"github.com/teal33t/dlm/internal/utils"
)

// ErrInvalidRequest is the §7 InvalidRequest kind: a call whose
// preconditions the caller violated (bad connection count, resume on a
// non-resumable job, unknown id for an operation that requires one).
var ErrInvalidRequest = errors.New("control: invalid request")

// FileExistsInfo is the check_file_exists result.
type FileExistsInfo struct {
	Exists    bool
	Suggested string
}

// New builds a Svc bound to an already-loaded ledger and settings.
func New(l *ledger.Ledger, settings *config.Settings, prober *probe.Client, sink events.Sink) *Svc {
	return &Svc{
		ledger:   l,
		settings: settings,
		prober:   prober,
		sink:     sink,
		active:   make(map[string]*handle.Handle),
		client:   transfer.NewHTTPClient(),
	}
}

// Svc is the control surface described in §4.J. One Svc is shared by every
// caller (CLI command, future daemon endpoint); it owns the single
// in-process set of active handles. Every method is safe for concurrent
// use.
type Svc struct {
	ledger   *ledger.Ledger
	settings *config.Settings
	prober   *probe.Client
	sink     events.Sink
	client   *http.Client

	mu     sync.Mutex
	active map[string]*handle.Handle
}

// FetchURLInfo runs the prober against url (§4.J fetch_url_info).
func (s *Svc) FetchURLInfo(ctx context.Context, rawURL string, headers map[string]string) (*probe.Result, error) {
	return s.prober.Probe(ctx, rawURL, headers)
}

// CheckFileExists resolves name against the configured download folder.
func (s *Svc) CheckFileExists(name string) (*FileExistsInfo, error) {
	dir := s.settings.ResolvedDownloadFolder()
	target := filepath.Join(dir, name)
	_, err := os.Stat(target)
	if err == nil {
		suggested, uErr := filename.Unique(dir, name)
		if uErr != nil {
			return nil, fmt.Errorf("control: %w", uErr)
		}
		return &FileExistsInfo{Exists: true, Suggested: suggested}, nil
	}
	if os.IsNotExist(err) {
		return &FileExistsInfo{Exists: false, Suggested: name}, nil
	}
	return nil, fmt.Errorf("control: %w", err)
}

// StartDownload creates a record, persists it, builds a handle, registers
// it, and spawns the appropriate transferor (§4.J start_download). It
// returns the new job id immediately; the transfer runs in the
// background.
func (s *Svc) StartDownload(ctx context.Context, rawURL, filenameHint string, size int64, resumable bool, headers map[string]string) (string, error) {
	dir := s.settings.ResolvedDownloadFolder()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("control: %w", err)
	}

	uniqueName, err := filename.Unique(dir, filenameHint)
	if err != nil {
		return "", fmt.Errorf("control: %w", err)
	}
	targetPath := filepath.Join(dir, uniqueName)

	id := genID(uniqueName)
	if src, pathErr := utils.ExtractURLPath(rawURL); pathErr == nil {
		utils.Debug("control: start_download: %s source %s", id, src)
	}

	numConnections := s.settings.Connections
	useChunked := resumable && size > 0
	if !useChunked {
		numConnections = 1
	}

	var segments []ledger.Segment
	if useChunked {
		plan := ledger.PlanFresh(size, numConnections)
		segments = ledger.ToSegments(plan)
	}

	now := time.Now().Unix()
	record := &ledger.Record{
		ID:             id,
		URL:            rawURL,
		Filename:       uniqueName,
		FilePath:       targetPath,
		TotalSize:      size,
		Resumable:      resumable,
		NumConnections: numConnections,
		Segments:       segments,
		Status:         ledger.StatusDownloading,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.ledger.Add(record)
	if err := s.ledger.Save(); err != nil {
		utils.Debug("control: start_download: save failed for %s: %v", id, err)
	}

	numSegments := len(segments)
	if numSegments == 0 {
		numSegments = 1 // single-stream path reports progress under segment id 0
	}
	h := handle.New(id, numSegments, nil)
	h.SetSpeedLimit(s.settings.SpeedLimit)

	s.registerHandle(id, h)

	if useChunked {
		go s.runChunked(ctx, id, rawURL, targetPath, size, numConnections, nil, headers, h)
	} else {
		go s.runSingle(ctx, id, rawURL, targetPath, headers, h)
	}

	return id, nil
}

// ResumeInterruptedDownload rebuilds a handle from the persisted segment
// state and spawns a fresh chunked transferor (§4.J
// resume_interrupted_download).
func (s *Svc) ResumeInterruptedDownload(ctx context.Context, id string) error {
	record, err := s.ledger.Get(id)
	if err != nil {
		return fmt.Errorf("control: %w", err)
	}

	switch record.Status {
	case ledger.StatusPaused, ledger.StatusFailed, ledger.StatusDownloading:
	default:
		return fmt.Errorf("%w: job %s is not resumable from status %s", ErrInvalidRequest, id, record.Status)
	}
	if !record.Resumable {
		return fmt.Errorf("%w: job %s is not resumable", ErrInvalidRequest, id)
	}

	if s.isActive(id) {
		return nil // resume idempotence: already running, second call no-ops
	}

	initial := make([]int64, len(record.Segments))
	for i, seg := range record.Segments {
		initial[i] = seg.Downloaded
	}
	h := handle.New(id, len(record.Segments), initial)
	h.SetSpeedLimit(s.settings.SpeedLimit)
	s.registerHandle(id, h)

	_ = s.ledger.Update(id, func(r *ledger.Record) { r.Status = ledger.StatusDownloading })
	_ = s.ledger.Save()

	go s.runChunked(ctx, id, record.URL, record.FilePath, record.TotalSize, record.NumConnections, record.Segments, nil, h)
	return nil
}

// PauseDownload sets paused=true on the active handle and persists the
// Paused status (§4.J pause_download).
func (s *Svc) PauseDownload(id string) error {
	h, ok := s.handleFor(id)
	if !ok {
		return fmt.Errorf("%w: job %s is not active", ErrInvalidRequest, id)
	}
	h.SetPaused(true)
	return s.setStatusAndSave(id, ledger.StatusPaused)
}

// ResumeDownload clears paused on an already-active handle (§4.J
// resume_download). It never spawns a transferor.
func (s *Svc) ResumeDownload(id string) error {
	h, ok := s.handleFor(id)
	if !ok {
		return fmt.Errorf("%w: job %s is not active", ErrInvalidRequest, id)
	}
	h.SetPaused(false)
	return s.setStatusAndSave(id, ledger.StatusDownloading)
}

// CancelDownload sets cancelled=true on the active handle (§4.J
// cancel_download).
func (s *Svc) CancelDownload(id string) error {
	h, ok := s.handleFor(id)
	if !ok {
		return fmt.Errorf("%w: job %s is not active", ErrInvalidRequest, id)
	}
	h.Cancel()
	return nil
}

// SetSpeedLimit persists the new cap and pushes it into every active
// handle (§4.J set_speed_limit).
func (s *Svc) SetSpeedLimit(bytesPerSecond int64) error {
	s.settings.SpeedLimit = bytesPerSecond
	if err := config.SaveSettings(s.settings); err != nil {
		return fmt.Errorf("control: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.active {
		h.SetSpeedLimit(bytesPerSecond)
	}
	return nil
}

// SetConnections validates and persists the default connection count
// (§4.J set_connections). Active downloads are unaffected.
func (s *Svc) SetConnections(n int) error {
	if !config.ValidateConnections(n) {
		return fmt.Errorf("%w: connections must be between %d and %d", ErrInvalidRequest, config.MinConnections, config.MaxConnections)
	}
	s.settings.Connections = n
	if err := config.SaveSettings(s.settings); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	return nil
}

// ClearDownloadHistory removes every Completed, Failed, or Cancelled record
// and best-effort deletes its temp directory and any .part remnant (§4.J
// clear_download_history).
func (s *Svc) ClearDownloadHistory() error {
	removed := s.ledger.RemoveWhere(func(r *ledger.Record) bool {
		switch r.Status {
		case ledger.StatusCompleted, ledger.StatusFailed, ledger.StatusCancelled:
			return true
		default:
			return false
		}
	})
	s.cleanupRemoved(removed)
	return s.ledger.Save()
}

// RemoveFromHistory applies ClearDownloadHistory's side effects to a
// single record (§4.J remove_from_history).
func (s *Svc) RemoveFromHistory(id string) error {
	removed := s.ledger.RemoveWhere(func(r *ledger.Record) bool { return r.ID == id })
	if len(removed) == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	s.cleanupRemoved(removed)
	return s.ledger.Save()
}

func (s *Svc) cleanupRemoved(records []*ledger.Record) {
	for _, r := range records {
		tempDir := transfer.TempDirName(r.FilePath, r.ID)
		_ = os.RemoveAll(tempDir)
		_ = os.Remove(r.FilePath + ".part")
	}
}

func (s *Svc) registerHandle(id string, h *handle.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[id] = h
}

func (s *Svc) handleFor(id string) (*handle.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.active[id]
	return h, ok
}

func (s *Svc) isActive(id string) bool {
	_, ok := s.handleFor(id)
	return ok
}

func (s *Svc) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

func (s *Svc) runChunked(ctx context.Context, id, rawURL, targetPath string, size int64, numConnections int, existing []ledger.Segment, headers map[string]string, h *handle.Handle) {
	job := &transfer.ChunkedJob{
		ID:               id,
		URL:              rawURL,
		TargetPath:       targetPath,
		TotalSize:        size,
		NumConnections:   numConnections,
		ExistingSegments: existing,
		Handle:           h,
		Headers:          headers,
		Client:           s.client,
		Sink:             s.sink,
		Ledger:           s.ledger,
	}
	segments, err := transfer.RunChunked(ctx, job)
	if err == nil {
		_ = s.ledger.Update(id, func(r *ledger.Record) {
			r.Segments = segments
			r.Status = ledger.StatusCompleted
		})
	}
	s.finishJob(id, err)
}

func (s *Svc) runSingle(ctx context.Context, id, rawURL, targetPath string, headers map[string]string, h *handle.Handle) {
	job := &transfer.SingleJob{
		ID:         id,
		URL:        rawURL,
		TargetPath: targetPath,
		Handle:     h,
		Headers:    headers,
		Client:     s.client,
		Sink:       s.sink,
	}
	finalPath, err := transfer.RunSingle(ctx, job)
	if err == nil {
		_ = s.ledger.Update(id, func(r *ledger.Record) {
			r.Status = ledger.StatusCompleted
			if finalPath != "" && finalPath != r.FilePath {
				r.FilePath = finalPath
				r.Filename = filepath.Base(finalPath)
			}
		})
	}
	s.finishJob(id, err)
}

// finishJob applies §4.J's worker-exit status mapping: Ok -> Completed
// (already set by the caller), a "cancelled" substring -> Cancelled, any
// other error -> Failed. Only non-cancellation failures emit
// download-error.
func (s *Svc) finishJob(id string, err error) {
	s.unregister(id)

	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "cancelled") {
			_ = s.ledger.Update(id, func(r *ledger.Record) { r.Status = ledger.StatusCancelled })
		} else {
			_ = s.ledger.Update(id, func(r *ledger.Record) { r.Status = ledger.StatusFailed })
			if s.sink != nil {
				s.sink.Publish(events.ErrorEvent{ID: id, Err: err})
			}
		}
	}
	if saveErr := s.ledger.Save(); saveErr != nil {
		utils.Debug("control: finishJob: save failed for %s: %v", id, saveErr)
	}
}

func (s *Svc) setStatusAndSave(id string, status ledger.Status) error {
	if err := s.ledger.Update(id, func(r *ledger.Record) { r.Status = status }); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if err := s.ledger.Save(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	return nil
}

// genID embeds a millisecond timestamp ahead of the filename per §3
// Invariant 5's documented (if imperfect) collision-avoidance convention.
func genID(filename string) string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + filename
}
