package fetcher

import (
	"archive/zip"
	"io"

	"github.com/rotisserie/eris"
)

// OpenZIPSingle opens the single file inside a ZIP archive for streaming.
// Closing the result closes the entry and the archive.
func OpenZIPSingle(zipPath string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	// Filter to only files (skip directories)
	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}

	if len(files) != 1 {
		_ = r.Close()
		return nil, eris.Errorf("zip: expected exactly 1 file, got %d", len(files))
	}

	rc, err := files[0].Open()
	if err != nil {
		_ = r.Close()
		return nil, eris.Wrap(err, "zip: open entry")
	}
	return &zipEntry{ReadCloser: rc, archive: r}, nil
}

type zipEntry struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z *zipEntry) Close() error {
	err := z.ReadCloser.Close()
	if aerr := z.archive.Close(); err == nil {
		err = aerr
	}
	return err
}
