package serp

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across component boundaries.
var (
	// ErrSourceUnavailable means the backing store holding the query list
	// could not be reached.
	ErrSourceUnavailable = errors.New("query source unavailable")

	// ErrEmptyQueryList means zero usable query rows exist. A no-op run is
	// surfaced distinctly from success.
	ErrEmptyQueryList = errors.New("query list is empty")

	// ErrColumnExists means a column for the requested date already exists
	// and overwrite was not requested.
	ErrColumnExists = errors.New("column for date already exists")

	// ErrColumnOutOfOrder means the requested date precedes the newest
	// existing column; column dates must stay monotonic.
	ErrColumnOutOfOrder = errors.New("column date precedes newest column")

	// ErrColumnImmutable means overwrite targeted a historical column.
	// Only the newest column may be replaced.
	ErrColumnImmutable = errors.New("only the newest column may be overwritten")

	// ErrRunInProgress means a trigger arrived while a run was in flight.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// FetchError reports a failed fetch for one query. Permanent marks
// rejections that retrying cannot fix (provider refused the query or served
// a block page); everything else is retry exhaustion.
type FetchError struct {
	Query     string
	Permanent bool
	Attempts  int
	Cause     error
}

func (e *FetchError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("fetch %q rejected: %v", e.Query, e.Cause)
	}
	return fmt.Sprintf("fetch %q failed after %d attempts: %v", e.Query, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsPermanentFetch reports whether err is a permanent fetch rejection.
func IsPermanentFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Permanent
}

// ParseError means no result count could be extracted from a response.
// Context carries a raw snippet for diagnosing provider format drift.
type ParseError struct {
	Context string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no recognizable result count (context: %.160q)", e.Context)
}
