// Package ledger implements component B: the durable, process-wide mapping
// from job id to Job Record. Grounded on the reference implementation's
// persistence.rs (DownloadHistory/DownloadRecord/ChunkRecord) and on the
// teacher's internal/downloader/state.go atomic save pattern.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Status is the terminal/transient lifecycle state of a job.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusDownloading Status = "Downloading"
	StatusPaused      Status = "Paused"
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
	StatusCancelled   Status = "Cancelled"
)

// ErrNotFound is returned by operations addressing an unknown job id.
var ErrNotFound = errors.New("ledger: record not found")

// Segment is a Segment Record: one planned byte range of a job.
type Segment struct {
	ID         int   `json:"id"`
	Start      int64 `json:"start"`
	End        int64 `json:"end"`
	Downloaded int64 `json:"downloaded"`
}

// Record is a Job Record (§3).
type Record struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Filename       string    `json:"filename"`
	FilePath       string    `json:"file_path"`
	TotalSize      int64     `json:"total_size"`
	Resumable      bool      `json:"resumable"`
	NumConnections int       `json:"num_connections"`
	Segments       []Segment `json:"segments"`
	Status         Status    `json:"status"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`
}

// TotalDownloaded sums Downloaded across all segments.
func (r *Record) TotalDownloaded() int64 {
	var total int64
	for _, s := range r.Segments {
		total += s.Downloaded
	}
	return total
}

// clone returns a deep copy so callers cannot mutate ledger-owned state
// through a pointer obtained from Get/AllSortedDescByCreatedAt.
func (r *Record) clone() *Record {
	cp := *r
	cp.Segments = append([]Segment(nil), r.Segments...)
	return &cp
}

// Ledger is a single-process, multi-reader/single-writer in-memory mirror
// of the persisted blob at path, guarded additionally by an flock so that
// two processes never interleave partial writes.
type Ledger struct {
	mu      sync.RWMutex
	path    string
	records map[string]*Record
}

// New creates a Ledger bound to a JSON file path. Callers must call Load
// once before use.
func New(path string) *Ledger {
	return &Ledger{
		path:    path,
		records: make(map[string]*Record),
	}
}

// Load reads the persisted blob. Absence or a parse error yields an empty
// ledger rather than an error, per spec: a corrupt or missing ledger must
// never prevent the process from starting.
//
// Restart reconciliation: any record whose status is Downloading is
// demoted to Paused. This is the only implicit state mutation across runs.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		l.records = make(map[string]*Record)
		return nil
	}

	var loaded map[string]*Record
	if err := json.Unmarshal(data, &loaded); err != nil {
		l.records = make(map[string]*Record)
		return nil
	}

	for _, r := range loaded {
		if r.Status == StatusDownloading {
			r.Status = StatusPaused
			r.UpdatedAt = time.Now().Unix()
		}
	}

	l.records = loaded
	return nil
}

// Save atomically persists the current ledger: write-temp-then-rename,
// protected by a cross-process flock on a sibling lock file. Saving is
// allowed to fail; callers must not panic on failure (PersistError, §7).
func (l *Ledger) Save() error {
	l.mu.RLock()
	data, err := json.MarshalIndent(l.records, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("ledger: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ledger: mkdir: %w", err)
	}

	fl := flock.New(l.path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("ledger: acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("ledger: write temp: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("ledger: rename: %w", err)
	}
	return nil
}

// Add inserts a new record. The caller owns record uniqueness (§3 Invariant
// 5); Add overwrites silently on id collision, matching the reference
// implementation's documented (if unfortunate) behavior.
func (l *Ledger) Add(r *Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[r.ID] = r.clone()
}

// Remove deletes a record by id. Removing an unknown id is a no-op.
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, id)
}

// Get returns a deep copy of the record, or ErrNotFound.
func (l *Ledger) Get(id string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

// Update applies mutator to the stored record under the write lock and sets
// updated_at = now. Returns ErrNotFound if id is unknown.
func (l *Ledger) Update(id string, mutator func(*Record)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[id]
	if !ok {
		return ErrNotFound
	}
	mutator(r)
	r.UpdatedAt = time.Now().Unix()
	return nil
}

// UpdateSegmentProgress sets the downloaded count for one segment.
func (l *Ledger) UpdateSegmentProgress(id string, segID int, downloaded int64) error {
	return l.Update(id, func(r *Record) {
		for i := range r.Segments {
			if r.Segments[i].ID == segID {
				r.Segments[i].Downloaded = downloaded
				return
			}
		}
	})
}

// AllSortedDescByCreatedAt returns deep copies of every record, newest
// first.
func (l *Ledger) AllSortedDescByCreatedAt() []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// RemoveWhere deletes every record for which pred returns true and returns
// the removed records (deep copies), for callers that need to clean up
// side effects like temp directories (clear_download_history,
// remove_from_history).
func (l *Ledger) RemoveWhere(pred func(*Record) bool) []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []*Record
	for id, r := range l.records {
		if pred(r) {
			removed = append(removed, r.clone())
			delete(l.records, id)
		}
	}
	return removed
}
