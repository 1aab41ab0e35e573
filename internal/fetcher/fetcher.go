// Package fetcher downloads sanctions feeds over HTTP, FTP or the local
// filesystem and decodes the CSV, XML, XLSX, JSON-lines and ZIP payloads they ship in.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher retrieves the body behind a URL.
type Fetcher interface {
	// Download fetches rawURL. Header may be nil.
	Download(ctx context.Context, rawURL string, header http.Header) (io.ReadCloser, error)
}

// Multi routes a URL to the fetcher that handles its scheme: http(s), ftp or file.
type Multi struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewMulti builds a scheme dispatcher. Either fetcher may be nil, in which
// case URLs of that scheme fail.
func NewMulti(h *HTTPFetcher, f *FTPFetcher) *Multi {
	return &Multi{http: h, ftp: f}
}

// Download implements Fetcher.
func (m *Multi) Download(ctx context.Context, rawURL string, header http.Header) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if m.http == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", rawURL)
		}
		return m.http.Download(ctx, rawURL, header)
	case "ftp":
		if m.ftp == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", rawURL)
		}
		return m.ftp.Download(ctx, rawURL, header)
	case "file", "":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", u.Path)
		}
		return f, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// ReadAll downloads rawURL fully, capped at limit bytes (0 means 512 MiB).
func ReadAll(ctx context.Context, f Fetcher, rawURL string, header http.Header, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = 512 << 20
	}
	body, err := f.Download(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body of %s", rawURL)
	}
	if int64(len(data)) > limit {
		return nil, eris.Errorf("fetcher: body of %s exceeds %d bytes", rawURL, limit)
	}
	return data, nil
}
