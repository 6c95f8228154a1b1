package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestOpenZIPSingle(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"waits.csv": "state,zip\nMO,65201\n"})

	rc, err := OpenZIPSingle(zipPath)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "state,zip\nMO,65201\n", string(data))
}

func TestOpenZIPSingle_MultipleFiles(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"a.csv": "a", "b.csv": "b"})

	_, err := OpenZIPSingle(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly 1 file, got 2")
}

func TestOpenZIPSingle_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	writeTestFile(t, path, "not a zip")

	_, err := OpenZIPSingle(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip: open archive")
}
