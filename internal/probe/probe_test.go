package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teal33t/dlm/internal/testutil"
)

func TestProbe_RangeSupported(t *testing.T) {
	srv := testutil.NewMockServerT(t,
		testutil.WithFileSize(1000),
		testutil.WithRangeSupport(true),
		testutil.WithFilename("archive.zip"),
	)
	defer srv.Close()

	c := New("")
	result, err := c.Probe(context.Background(), srv.URL(), nil)
	require.NoError(t, err)

	assert.True(t, result.Resumable)
	assert.Equal(t, int64(1000), result.Size)
	assert.Equal(t, "archive.zip", result.Filename)
}

func TestProbe_RangeNotSupported(t *testing.T) {
	srv := testutil.NewMockServerT(t,
		testutil.WithFileSize(500),
		testutil.WithRangeSupport(false),
	)
	defer srv.Close()

	c := New("")
	result, err := c.Probe(context.Background(), srv.URL(), nil)
	require.NoError(t, err)

	assert.False(t, result.Resumable)
	assert.Equal(t, int64(500), result.Size)
}

func TestProbe_NonExistentHost(t *testing.T) {
	c := New("")
	_, err := c.Probe(context.Background(), "http://127.0.0.1:1/nope", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestProbe_FilenameFallsBackToURLBasename(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(10), testutil.WithFilename(""))
	defer srv.Close()

	c := New("")
	result, err := c.Probe(context.Background(), srv.URL()+"/some/path/report.csv", nil)
	require.NoError(t, err)
	assert.Equal(t, "report.csv", result.Filename)
}
