package fetcher

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSource(t *testing.T, path string, opts OpenOptions) string {
	t.Helper()
	rc, err := Open(path, opts)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestResolveSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "c.txt"} {
		writeTestFile(t, filepath.Join(dir, name), "x\n")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.csv"), 0o755))

	files, err := ResolveSources([]string{
		filepath.Join(dir, "*.csv"),
		filepath.Join(dir, "c.txt"),
		filepath.Join(dir, "a.csv"), // duplicate of a glob match
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "c.txt"),
	}, files)
}

func TestResolveSources_NoMatch(t *testing.T) {
	_, err := ResolveSources([]string{filepath.Join(t.TempDir(), "*.csv"), "missing.csv"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoInput))
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "second.csv")
	writeTestFile(t, second, "x\n")

	got, err := FirstExisting([]string{filepath.Join(dir, "first.csv"), second})
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = FirstExisting([]string{filepath.Join(dir, "none.csv")})
	assert.True(t, errors.Is(err, ErrNoInput))
}

func TestOpen_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	writeTestFile(t, path, "\xEF\xBB\xBFstate,zip\nMO,65201\n")

	assert.Equal(t, "state,zip\nMO,65201\n", readSource(t, path, OpenOptions{}), "BOM is stripped")
}

func TestOpen_InvalidUTF8Replaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	writeTestFile(t, path, "name\nJos\xe9\n")

	assert.Equal(t, "name\nJos�\n", readSource(t, path, OpenOptions{}))
}

func TestOpen_Latin1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	writeTestFile(t, path, "name\nJos\xe9\n")

	assert.Equal(t, "name\nJosé\n", readSource(t, path, OpenOptions{Encoding: "windows-1252"}))
}

func TestOpen_UnknownEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	writeTestFile(t, path, "x\n")

	_, err := Open(path, OpenOptions{Encoding: "klingon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown encoding")
}

func TestOpen_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("state\nMO\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "in.csv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	assert.Equal(t, "state\nMO\n", readSource(t, path, OpenOptions{}))
}

func TestOpen_BadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv.gz")
	writeTestFile(t, path, "plain text")

	_, err := Open(path, OpenOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip header")
}

func TestOpen_Zip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"waits.csv": "state\nKS\n"})
	assert.Equal(t, "state\nKS\n", readSource(t, zipPath, OpenOptions{}))
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.csv"), OpenOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: open")
}
