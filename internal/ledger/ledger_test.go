package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "downloads.json")
	l := New(path)
	require.NoError(t, l.Load())
	return l
}

func TestLedger_LoadMissingFileYieldsEmpty(t *testing.T) {
	l := newTestLedger(t)
	assert.Empty(t, l.AllSortedDescByCreatedAt())
}

func TestLedger_AddGetRemove(t *testing.T) {
	l := newTestLedger(t)
	r := &Record{ID: "job_1", URL: "http://x", Status: StatusPending, CreatedAt: 1}
	l.Add(r)

	got, err := l.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, "job_1", got.ID)

	l.Remove("job_1")
	_, err = l.Get("job_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_GetReturnsCopyNotAlias(t *testing.T) {
	l := newTestLedger(t)
	l.Add(&Record{ID: "job_1", Segments: []Segment{{ID: 0, End: 9}}})

	got, err := l.Get("job_1")
	require.NoError(t, err)
	got.Segments[0].Downloaded = 999

	got2, err := l.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got2.Segments[0].Downloaded)
}

func TestLedger_UpdateSegmentProgress(t *testing.T) {
	l := newTestLedger(t)
	l.Add(&Record{ID: "job_1", Segments: []Segment{{ID: 0, End: 99}, {ID: 1, Start: 100, End: 199}}})

	require.NoError(t, l.UpdateSegmentProgress("job_1", 1, 50))

	got, err := l.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Segments[1].Downloaded)
	assert.NotZero(t, got.UpdatedAt)
}

func TestLedger_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads.json")
	l := New(path)
	require.NoError(t, l.Load())
	l.Add(&Record{
		ID:        "job_1",
		URL:       "http://example.com/file",
		Filename:  "file",
		TotalSize: 100,
		Status:    StatusCompleted,
		CreatedAt: 42,
		Segments:  []Segment{{ID: 0, End: 99, Downloaded: 100}},
	})
	require.NoError(t, l.Save())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())

	got, err := reloaded.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/file", got.URL)
	assert.Equal(t, int64(100), got.TotalDownloaded())
}

func TestLedger_RestartReconciliationDemotesDownloading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads.json")
	l := New(path)
	require.NoError(t, l.Load())
	l.Add(&Record{ID: "job_1", Status: StatusDownloading, CreatedAt: 1})
	require.NoError(t, l.Save())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())

	got, err := reloaded.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)
}

func TestLedger_AllSortedDescByCreatedAt(t *testing.T) {
	l := newTestLedger(t)
	l.Add(&Record{ID: "a", CreatedAt: 1})
	l.Add(&Record{ID: "b", CreatedAt: 3})
	l.Add(&Record{ID: "c", CreatedAt: 2})

	all := l.AllSortedDescByCreatedAt()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "c", all[1].ID)
	assert.Equal(t, "a", all[2].ID)
}

func TestLedger_RemoveWhere(t *testing.T) {
	l := newTestLedger(t)
	l.Add(&Record{ID: "a", Status: StatusCompleted})
	l.Add(&Record{ID: "b", Status: StatusDownloading})
	l.Add(&Record{ID: "c", Status: StatusFailed})

	removed := l.RemoveWhere(func(r *Record) bool {
		return r.Status == StatusCompleted || r.Status == StatusFailed
	})
	assert.Len(t, removed, 2)
	assert.Len(t, l.AllSortedDescByCreatedAt(), 1)
}

func TestPlanFresh_PartitionsExactly(t *testing.T) {
	for _, n := range []int{1, 3, 4, 7, 32} {
		plan := PlanFresh(1000, n)
		require.Len(t, plan, n)

		var sum int64
		for i, seg := range plan {
			sum += seg.End - seg.Start + 1
			if i > 0 {
				assert.Equal(t, plan[i-1].End+1, seg.Start)
			}
		}
		assert.Equal(t, int64(1000), sum)
		assert.Equal(t, int64(999), plan[n-1].End)
	}
}

func TestPlanFromSegments_CarriesDownloaded(t *testing.T) {
	segs := []Segment{{ID: 0, Start: 0, End: 99, Downloaded: 50}}
	plan := PlanFromSegments(segs)
	require.Len(t, plan, 1)
	assert.Equal(t, int64(50), plan[0].AlreadyDownloaded)
}
