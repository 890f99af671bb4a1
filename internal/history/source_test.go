package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serptrend/serptrend/internal/serp"
)

type stubLister struct {
	rows []serp.Query
	err  error
}

func (s stubLister) LoadRows(context.Context) ([]serp.Query, error) {
	return s.rows, s.err
}

func TestQuerySourceSkipsEmptyRows(t *testing.T) {
	t.Parallel()

	source := NewQuerySource(stubLister{rows: []serp.Query{
		{RowID: "a", Text: "golang sqlite"},
		{RowID: "b", Text: "   "},
		{RowID: "c", Text: ""},
		{RowID: "d", Text: "  padded query  "},
	}}, nil)

	queries, skipped, err := source.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, skipped)
	require.Len(t, queries, 2)
	require.Equal(t, "golang sqlite", queries[0].Text)
	require.Equal(t, "padded query", queries[1].Text)
}

func TestQuerySourceEmptyListIsError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rows []serp.Query
	}{
		{name: "no rows"},
		{name: "only empty rows", rows: []serp.Query{{RowID: "a", Text: "  "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			source := NewQuerySource(stubLister{rows: tt.rows}, nil)
			_, _, err := source.List(context.Background())
			require.ErrorIs(t, err, serp.ErrEmptyQueryList)
		})
	}
}

func TestQuerySourceWrapsStoreFailure(t *testing.T) {
	t.Parallel()

	source := NewQuerySource(stubLister{err: errors.New("disk gone")}, nil)
	_, _, err := source.List(context.Background())
	require.ErrorIs(t, err, serp.ErrSourceUnavailable)
	require.Contains(t, err.Error(), "disk gone")
}
