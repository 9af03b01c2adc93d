package extractor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teal33t/dlm/internal/events"
)

type captureSink struct {
	events []any
}

func (c *captureSink) Publish(e any) { c.events = append(c.events, e) }

func TestIsVideoURL(t *testing.T) {
	assert.True(t, IsVideoURL("https://www.youtube.com/watch?v=abc123"))
	assert.True(t, IsVideoURL("https://youtu.be/abc123"))
	assert.True(t, IsVideoURL("https://vimeo.com/12345"))
	assert.False(t, IsVideoURL("https://example.com/file.zip"))
}

func TestParseProgressLine_NASentinelsParseAsZero(t *testing.T) {
	line := "DLM: NA%|NA|NA|NA|NA|NA"
	p, ok := parseProgressLine(line, "job_1")
	require.True(t, ok)
	assert.Equal(t, int64(0), p.Downloaded)
	assert.Equal(t, int64(0), p.Total)
	assert.Equal(t, float64(0), p.Speed)
}

func TestParseProgressLine_InfersTotalFromPercent(t *testing.T) {
	// 50% with 10MB downloaded and no usable total implies a 20MB total.
	line := "DLM: 50.0%|10485760|0|0|102400|30"
	p, ok := parseProgressLine(line, "job_1")
	require.True(t, ok)
	assert.Equal(t, int64(10485760), p.Downloaded)
	assert.InDelta(t, 20971520, p.Total, 1024)
	assert.Equal(t, float64(102400), p.Speed)
}

func TestParseProgressLine_KeepsExactTotalWhenPlausible(t *testing.T) {
	line := "DLM: 10.0%|1048576|10485760|0|51200|90"
	p, ok := parseProgressLine(line, "job_1")
	require.True(t, ok)
	assert.Equal(t, int64(10485760), p.Total)
}

func TestParseProgressLine_TooFewFieldsIsRejected(t *testing.T) {
	_, ok := parseProgressLine("DLM: 10%|1|2", "job_1")
	assert.False(t, ok)
}

func TestHasVideoExt(t *testing.T) {
	assert.True(t, hasVideoExt("movie.mp4"))
	assert.True(t, hasVideoExt("clip.webm"))
	assert.False(t, hasVideoExt("clip.txt"))
}

func TestRun_ParsesProgressAndReturnsFilename(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor script is a POSIX shell script")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-yt-dlp.sh")
	body := "#!/bin/sh\n" +
		"echo 'DLM: 50.0%|500|1000|1000|100|5'\n" +
		"echo 'Destination: " + filepath.Join(dir, "clip.mp4") + "'\n" +
		"echo 'DLM: 100.0%|1000|1000|1000|100|0'\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	sink := &captureSink{}
	job := &Job{ID: "job_1", URL: "https://youtu.be/abc", FormatID: "best", OutputDir: dir, Bin: script, Sink: sink}
	h := NewHandle()

	name, err := Run(context.Background(), job, h)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", name)

	var progressCount int
	for _, e := range sink.events {
		if _, ok := e.(events.ProgressEvent); ok {
			progressCount++
		}
	}
	assert.Equal(t, 2, progressCount)
}

func TestRun_CancelReturnsErrCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor script is a POSIX shell script")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-yt-dlp.sh")
	body := "#!/bin/sh\nsleep 5\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	job := &Job{ID: "job_1", URL: "https://youtu.be/abc", FormatID: "best", OutputDir: dir, Bin: script}
	h := NewHandle()

	go func() {
		time.Sleep(100 * time.Millisecond)
		h.Cancel()
	}()

	_, err := Run(context.Background(), job, h)
	assert.ErrorIs(t, err, ErrCancelled)
}
