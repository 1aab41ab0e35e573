package source

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/fetcher"
)

// feed holds what every adapter shares: identity, settings and transport.
type feed struct {
	id       string
	settings Settings
	fetcher  fetcher.Fetcher
	now      func() time.Time
}

// ID implements Adapter.
func (f feed) ID() string {
	return f.id
}

// payload downloads rawURL and unwraps a ZIP if the body is one.
func (f feed) payload(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	data, err := fetcher.ReadAll(ctx, f.fetcher, rawURL, header, 0)
	if err != nil {
		return nil, AsFetchError(f.id, err)
	}
	data, err = fetcher.Unzip(data, f.settings.Member)
	if err != nil {
		return nil, f.badData(err)
	}
	if len(data) == 0 {
		return nil, f.badData(eris.New("empty payload"))
	}
	return data, nil
}

func (f feed) badData(err error) *FetchError {
	return NewFetchError(f.id, ReasonBadData, err)
}

// readErr maps a decoding error to a FetchError, keeping cancellation and
// deadline failures distinguishable from malformed payloads.
func (f feed) readErr(ctx context.Context, err error) *FetchError {
	if ctx.Err() != nil {
		return AsFetchError(f.id, ctx.Err())
	}
	return f.badData(err)
}

// attrs drops empty values so raw attributes only carry what the feed set.
func attrs(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if v := kv[i+1]; v != "" {
			out[kv[i]] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
