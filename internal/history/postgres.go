package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serptrend/serptrend/internal/serp"
)

// pgxPool abstracts the pgx pool so tests can substitute a mock.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS queries (
		row_id   TEXT PRIMARY KEY,
		position INTEGER NOT NULL UNIQUE,
		text     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS columns (
		id       BIGSERIAL PRIMARY KEY,
		run_date TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS cells (
		row_id       TEXT NOT NULL REFERENCES queries (row_id) ON DELETE CASCADE,
		column_id    BIGINT NOT NULL REFERENCES columns (id) ON DELETE CASCADE,
		result_count BIGINT,
		PRIMARY KEY (row_id, column_id)
	)`,
}

// PostgresStore implements serp.HistoryStore on Postgres.
type PostgresStore struct {
	pool pgxPool

	mu sync.Mutex
	tx pgx.Tx
}

// OpenPostgres connects to Postgres and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("history.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool constructs a store from an existing pool
// (primarily for testing); the schema is assumed present.
func NewPostgresWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close rolls back any staged column and releases the pool.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	if s.tx != nil {
		_ = s.tx.Rollback(context.Background())
		s.tx = nil
	}
	s.mu.Unlock()
	s.pool.Close()
	return nil
}

// LoadRows returns all query rows in position order.
func (s *PostgresStore) LoadRows(ctx context.Context) ([]serp.Query, error) {
	rows, err := s.pool.Query(ctx, `SELECT row_id, text FROM queries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load query rows: %w", err)
	}
	defer rows.Close()

	var out []serp.Query
	for rows.Next() {
		var q serp.Query
		if err := rows.Scan(&q.RowID, &q.Text); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query rows: %w", err)
	}
	return out, nil
}

// AppendColumn opens the column transaction for date, with the same
// conflict and ordering rules as the SQLite backend.
func (s *PostgresStore) AppendColumn(ctx context.Context, date string, overwrite bool) (serp.ColumnHandle, error) {
	if _, err := time.Parse(serp.ColumnDateLayout, date); err != nil {
		return 0, fmt.Errorf("invalid column date %q: %w", date, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return 0, fmt.Errorf("begin column transaction: %w", err)
		}
		s.tx = tx
	}

	var newest *string
	if err := s.tx.QueryRow(ctx, `SELECT MAX(run_date) FROM columns`).Scan(&newest); err != nil {
		return 0, fmt.Errorf("read newest column date: %w", err)
	}

	var existing int64
	err := s.tx.QueryRow(ctx, `SELECT id FROM columns WHERE run_date = $1`, date).Scan(&existing)
	switch {
	case err == nil:
		if !overwrite {
			return 0, fmt.Errorf("%w: %s", serp.ErrColumnExists, date)
		}
		if newest != nil && *newest != date {
			return 0, fmt.Errorf("%w: %s", serp.ErrColumnImmutable, date)
		}
		if _, err := s.tx.Exec(ctx, `DELETE FROM cells WHERE column_id = $1`, existing); err != nil {
			return 0, fmt.Errorf("clear overwritten column: %w", err)
		}
		return serp.ColumnHandle(existing), nil
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return 0, fmt.Errorf("look up column date: %w", err)
	}

	if newest != nil && date < *newest {
		return 0, fmt.Errorf("%w: %s is older than %s", serp.ErrColumnOutOfOrder, date, *newest)
	}

	var id int64
	if err := s.tx.QueryRow(ctx, `INSERT INTO columns (run_date) VALUES ($1) RETURNING id`, date).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert column: %w", err)
	}
	return serp.ColumnHandle(id), nil
}

// WriteCell stages one cell in the open column; nil writes the explicit
// absent marker.
func (s *PostgresStore) WriteCell(ctx context.Context, rowID string, col serp.ColumnHandle, count *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errors.New("no open column transaction")
	}
	_, err := s.tx.Exec(ctx, `
INSERT INTO cells (row_id, column_id, result_count)
VALUES ($1, $2, $3)
ON CONFLICT (row_id, column_id) DO UPDATE SET result_count = EXCLUDED.result_count`,
		rowID, int64(col), count,
	)
	if err != nil {
		return fmt.Errorf("write cell %s: %w", rowID, err)
	}
	return nil
}

// Commit makes the staged column durable and visible.
func (s *PostgresStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit column: %w", err)
	}
	return nil
}

// Rollback discards the staged column.
func (s *PostgresStore) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(ctx)
	s.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback column: %w", err)
	}
	return nil
}

// AddQuery appends a query row at the end of the tracked list.
func (s *PostgresStore) AddQuery(ctx context.Context, q serp.Query) error {
	if q.RowID == "" {
		return errors.New("row id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO queries (row_id, position, text)
VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM queries), $2)`,
		q.RowID, q.Text,
	)
	if err != nil {
		return fmt.Errorf("add query: %w", err)
	}
	return nil
}

// ListColumns returns the committed column dates in append order.
func (s *PostgresStore) ListColumns(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT run_date FROM columns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan column date: %w", err)
		}
		out = append(out, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return out, nil
}

// ReadColumn returns the committed cells of the column for date.
func (s *PostgresStore) ReadColumn(ctx context.Context, date string) (map[string]*int64, error) {
	rows, err := s.pool.Query(ctx, `
SELECT c.row_id, c.result_count
FROM cells c
JOIN columns col ON col.id = c.column_id
WHERE col.run_date = $1`, date)
	if err != nil {
		return nil, fmt.Errorf("read column %s: %w", date, err)
	}
	defer rows.Close()

	out := make(map[string]*int64)
	for rows.Next() {
		var rowID string
		var count *int64
		if err := rows.Scan(&rowID, &count); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		out[rowID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return out, nil
}
