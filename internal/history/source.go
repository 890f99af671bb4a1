package history

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/serptrend/serptrend/internal/serp"
)

// rowLister is the slice of the store the query source needs. Both backends
// satisfy it, so query enumeration stays swappable independently of the
// full HistoryStore contract.
type rowLister interface {
	LoadRows(ctx context.Context) ([]serp.Query, error)
}

// QuerySource implements serp.QuerySource over a history store.
type QuerySource struct {
	store  rowLister
	logger *zap.Logger
}

// NewQuerySource builds a QuerySource.
func NewQuerySource(store rowLister, logger *zap.Logger) *QuerySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuerySource{store: store, logger: logger}
}

// List returns the usable queries in row order. Rows whose text is empty
// after trimming are skipped and counted, not treated as fatal. Zero usable
// rows is surfaced as ErrEmptyQueryList so a no-op run never looks like
// success.
func (s *QuerySource) List(ctx context.Context) ([]serp.Query, int, error) {
	rows, err := s.store.LoadRows(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", serp.ErrSourceUnavailable, err)
	}

	skipped := 0
	out := make([]serp.Query, 0, len(rows))
	for _, row := range rows {
		text := strings.TrimSpace(row.Text)
		if text == "" {
			skipped++
			s.logger.Warn("skipping query row with empty text", zap.String("row_id", row.RowID))
			continue
		}
		out = append(out, serp.Query{RowID: row.RowID, Text: text})
	}

	if len(out) == 0 {
		return nil, skipped, serp.ErrEmptyQueryList
	}
	return out, skipped, nil
}
