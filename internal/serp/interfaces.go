package serp

import (
	"context"
	"time"
)

// QuerySource enumerates the tracked queries in row order. The second
// return value counts rows skipped for having empty text after trimming.
type QuerySource interface {
	List(ctx context.Context) ([]Query, int, error)
}

// SearchClient issues one query against the search provider, applying the
// shared pacer and the retry policy internally.
type SearchClient interface {
	Fetch(ctx context.Context, text string) (RawResponse, error)
}

// ResultParser extracts a result-count integer from a raw response. It
// fails closed with *ParseError rather than guessing.
type ResultParser interface {
	Parse(resp RawResponse) (int64, error)
}

// HistoryStore owns the durable table of query rows by dated columns.
// AppendColumn opens a column transaction; WriteCell stages one cell
// (nil count = explicit absent marker, distinct from zero); Commit makes
// the column visible atomically. Historical columns are never mutated.
type HistoryStore interface {
	LoadRows(ctx context.Context) ([]Query, error)
	AppendColumn(ctx context.Context, date string, overwrite bool) (ColumnHandle, error)
	WriteCell(ctx context.Context, rowID string, col ColumnHandle, count *int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SnapshotStore persists raw response bodies for offline diagnosis and
// returns a URI for the stored object.
type SnapshotStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Notifier delivers the summary of a finished (or failed) run.
type Notifier interface {
	Notify(ctx context.Context, summary RunSummary) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and request IDs.
type IDGenerator interface {
	NewID() (string, error)
}
