package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

var zipMagic = []byte("PK\x03\x04")

// IsZIP reports whether data starts with a ZIP local file header.
func IsZIP(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// Unzip returns the payload of a ZIP archive held in memory. With member set,
// the file with that base name is returned; otherwise the archive must hold
// exactly one file. Data that is not a ZIP is returned unchanged.
func Unzip(data []byte, member string) ([]byte, error) {
	if !IsZIP(data) {
		return data, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	var files []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.Contains(f.Name, "..") {
			continue
		}
		if member != "" && path.Base(f.Name) == member {
			return readZIPEntry(f)
		}
		files = append(files, f)
	}

	if member != "" {
		return nil, eris.Errorf("zip: member %q not found in archive", member)
	}
	if len(files) != 1 {
		return nil, eris.Errorf("zip: expected exactly 1 file, got %d", len(files))
	}
	return readZIPEntry(files[0])
}

func readZIPEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: read entry %s", f.Name)
	}
	return data, nil
}
