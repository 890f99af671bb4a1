package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serptrend/serptrend/internal/serp"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedQueries(t *testing.T, store *SQLiteStore, texts ...string) []serp.Query {
	t.Helper()
	ctx := context.Background()
	queries := make([]serp.Query, 0, len(texts))
	for i, text := range texts {
		q := serp.Query{RowID: string(rune('a' + i)), Text: text}
		require.NoError(t, store.AddQuery(ctx, q))
		queries = append(queries, q)
	}
	return queries
}

func ptr(v int64) *int64 { return &v }

func TestLoadRowsPreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedQueries(t, store, "first query", "second query", "third query")

	rows, err := store.LoadRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "first query", rows[0].Text)
	require.Equal(t, "third query", rows[2].Text)
}

func TestAppendColumnCommitsAtomically(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedQueries(t, store, "alpha", "beta", "gamma")
	ctx := context.Background()

	col, err := store.AppendColumn(ctx, "2026-08-29", false)
	require.NoError(t, err)
	require.NoError(t, store.WriteCell(ctx, "a", col, ptr(120)))
	require.NoError(t, store.WriteCell(ctx, "b", col, ptr(0)))
	require.NoError(t, store.WriteCell(ctx, "c", col, nil))

	require.NoError(t, store.Commit(ctx))

	dates, err := store.ListColumns(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-08-29"}, dates)

	cells, err := store.ReadColumn(ctx, "2026-08-29")
	require.NoError(t, err)
	require.Len(t, cells, 3)
	require.Equal(t, int64(120), *cells["a"])
	// Zero results and absent are distinct cell states.
	require.NotNil(t, cells["b"])
	require.Zero(t, *cells["b"])
	require.Nil(t, cells["c"])
}

func TestAppendColumnRejectsDuplicateDate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedQueries(t, store, "alpha")
	ctx := context.Background()

	col, err := store.AppendColumn(ctx, "2026-08-29", false)
	require.NoError(t, err)
	require.NoError(t, store.WriteCell(ctx, "a", col, ptr(1)))
	require.NoError(t, store.Commit(ctx))

	_, err = store.AppendColumn(ctx, "2026-08-29", false)
	require.ErrorIs(t, err, serp.ErrColumnExists)
	require.NoError(t, store.Rollback(ctx))
}

func TestAppendColumnOverwritesNewestOnly(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedQueries(t, store, "alpha")
	ctx := context.Background()

	for _, day := range []string{"2026-08-28", "2026-08-29"} {
		col, err := store.AppendColumn(ctx, day, false)
		require.NoError(t, err)
		require.NoError(t, store.WriteCell(ctx, "a", col, ptr(10)))
		require.NoError(t, store.Commit(ctx))
	}

	// Historical columns stay immutable even with overwrite.
	_, err := store.AppendColumn(ctx, "2026-08-28", true)
	require.ErrorIs(t, err, serp.ErrColumnImmutable)
	require.NoError(t, store.Rollback(ctx))

	// The newest column may be replaced wholesale.
	col, err := store.AppendColumn(ctx, "2026-08-29", true)
	require.NoError(t, err)
	require.NoError(t, store.WriteCell(ctx, "a", col, ptr(99)))
	require.NoError(t, store.Commit(ctx))

	cells, err := store.ReadColumn(ctx, "2026-08-29")
	require.NoError(t, err)
	require.Equal(t, int64(99), *cells["a"])

	dates, err := store.ListColumns(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-08-28", "2026-08-29"}, dates)
}

func TestAppendColumnRejectsOlderDate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedQueries(t, store, "alpha")
	ctx := context.Background()

	col, err := store.AppendColumn(ctx, "2026-08-29", false)
	require.NoError(t, err)
	require.NoError(t, store.WriteCell(ctx, "a", col, ptr(5)))
	require.NoError(t, store.Commit(ctx))

	_, err = store.AppendColumn(ctx, "2026-08-27", false)
	require.ErrorIs(t, err, serp.ErrColumnOutOfOrder)
}

func TestAppendColumnRejectsMalformedDate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.AppendColumn(context.Background(), "29-Aug-2026", false)
	require.Error(t, err)
}

func TestRollbackDiscardsStagedColumn(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedQueries(t, store, "alpha")
	ctx := context.Background()

	col, err := store.AppendColumn(ctx, "2026-08-29", false)
	require.NoError(t, err)
	require.NoError(t, store.WriteCell(ctx, "a", col, ptr(7)))
	require.NoError(t, store.Rollback(ctx))

	dates, err := store.ListColumns(ctx)
	require.NoError(t, err)
	require.Empty(t, dates)
}

func TestWriteCellRequiresOpenColumn(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.WriteCell(context.Background(), "a", 1, ptr(1))
	require.Error(t, err)
}

func TestCommitWithoutStagedColumnIsNoop(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Commit(context.Background()))
	require.NoError(t, store.Rollback(context.Background()))
}
