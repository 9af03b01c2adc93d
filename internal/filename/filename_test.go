package filename

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFromURL(t *testing.T) {
	cases := []struct {
		url      string
		expected string
		ok       bool
	}{
		{"https://example.com/a/b/file.zip", "file.zip", true},
		{"https://example.com/a/b/file.zip?x=1&y=2", "file.zip", true},
		{"https://example.com/a/b/", "", false},
		{"https://example.com/noext", "", false},
		{"https://example.com/", "", false},
		{"https://example.com", "", false},
	}

	for _, tc := range cases {
		got, ok := ExtractFromURL(tc.url)
		assert.Equal(t, tc.ok, ok, tc.url)
		if tc.ok {
			assert.Equal(t, tc.expected, got, tc.url)
		}
	}
}

func TestUnique_NoCollision(t *testing.T) {
	dir := t.TempDir()
	got, err := Unique(dir, "file.zip")
	require.NoError(t, err)
	assert.Equal(t, "file.zip", got)
}

func TestUnique_WithCollisions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.zip"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file (1).zip"), []byte("x"), 0644))

	got, err := Unique(dir, "file.zip")
	require.NoError(t, err)
	assert.Equal(t, "file (2).zip", got)
}

func TestUnique_NoExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0644))

	got, err := Unique(dir, "README")
	require.NoError(t, err)
	assert.Equal(t, "README (1)", got)
}

func TestUnique_Determinism(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	got1, err1 := Unique(dir, "a.txt")
	require.NoError(t, err1)
	got2, err2 := Unique(dir, "a.txt")
	require.NoError(t, err2)
	assert.Equal(t, got1, got2)
}

func TestWithExtension(t *testing.T) {
	assert.Equal(t, "file.bin", WithExtension("file", "bin"))
	assert.Equal(t, "file.zip", WithExtension("file.zip", "bin"))
	assert.Equal(t, "file", WithExtension("file", ""))
}
