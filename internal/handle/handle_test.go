package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandle_CancelAndPauseFlags(t *testing.T) {
	h := New("job_1", 2, nil)
	assert.False(t, h.Cancelled())
	assert.False(t, h.Paused())

	h.Cancel()
	h.SetPaused(true)

	assert.True(t, h.Cancelled())
	assert.True(t, h.Paused())
}

func TestHandle_SpeedLimit(t *testing.T) {
	h := New("job_1", 1, nil)
	assert.Equal(t, int64(0), h.SpeedLimit())

	h.SetSpeedLimit(1024)
	assert.Equal(t, int64(1024), h.SpeedLimit())
}

func TestHandle_SeededSegments(t *testing.T) {
	h := New("job_1", 3, []int64{10, 20})
	assert.Equal(t, int64(10), h.SegmentProgress(0))
	assert.Equal(t, int64(20), h.SegmentProgress(1))
	assert.Equal(t, int64(0), h.SegmentProgress(2))
}

func TestHandle_AddSegmentProgressConcurrent(t *testing.T) {
	h := New("job_1", 1, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.AddSegmentProgress(0, 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), h.SegmentProgress(0))
}

func TestHandle_TotalDownloaded(t *testing.T) {
	h := New("job_1", 3, []int64{10, 20, 30})
	assert.Equal(t, int64(60), h.TotalDownloaded())
}

func TestHandle_SnapshotIsIndependentCopy(t *testing.T) {
	h := New("job_1", 2, []int64{1, 2})
	snap := h.Snapshot()
	h.AddSegmentProgress(0, 100)

	assert.Equal(t, int64(1), snap[0])
	assert.Equal(t, int64(101), h.SegmentProgress(0))
}
