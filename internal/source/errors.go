package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/resilience"
)

// Reason categorizes why a source could not deliver records.
type Reason string

const (
	ReasonUnreachable  Reason = "unreachable"
	ReasonBadStatus    Reason = "bad_status"
	ReasonBadData      Reason = "bad_data"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonTimeout      Reason = "timeout"
	ReasonDisabled     Reason = "disabled"
	ReasonSuspended    Reason = "suspended"
)

// FetchError reports that one source failed. It never aborts sibling sources.
type FetchError struct {
	SourceID string
	Reason   Reason
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source %s: %s", e.SourceID, e.Reason)
	}
	return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a FetchError with an explicit reason.
func NewFetchError(sourceID string, reason Reason, err error) *FetchError {
	return &FetchError{SourceID: sourceID, Reason: reason, Err: err}
}

// AsFetchError returns err as a FetchError for sourceID, classifying the
// reason from the error chain when err is not one already.
func AsFetchError(sourceID string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return NewFetchError(sourceID, classify(err), err)
}

func classify(err error) Reason {
	if errors.Is(err, resilience.ErrSourceSuspended) {
		return ReasonSuspended
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	status := resilience.StatusCode(err)
	var se *fetcher.StatusError
	if errors.As(err, &se) {
		status = se.StatusCode
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ReasonUnauthorized
	case status == http.StatusTooManyRequests:
		return ReasonRateLimited
	case status != 0:
		return ReasonBadStatus
	}
	return ReasonUnreachable
}
