// Package history persists the query rows by dated columns table.
//
// A run stages one new column inside a transaction and commits it
// atomically; historical columns are never mutated. SQLite is the default
// backend, Postgres the alternative for shared deployments.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/serptrend/serptrend/internal/serp"
)

//go:embed schema.sql
var schemaSQL string

// Admin extends the run-facing store contract with query management and
// read access used by the CLI and tests.
type Admin interface {
	AddQuery(ctx context.Context, q serp.Query) error
	ListColumns(ctx context.Context) ([]string, error)
	ReadColumn(ctx context.Context, date string) (map[string]*int64, error)
}

// SQLiteStore implements serp.HistoryStore on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB

	mu sync.Mutex
	tx *sql.Tx
}

// OpenSQLite creates or opens the database at path and applies the schema.
// WAL mode keeps concurrent readers off the staged column until commit.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows one writer at a time; a second connection would only
	// produce SQLITE_BUSY during the column transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close rolls back any staged column and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	s.mu.Unlock()
	return s.db.Close()
}

// LoadRows returns all query rows in position order, including rows with
// empty text; filtering is the QuerySource's concern.
func (s *SQLiteStore) LoadRows(ctx context.Context) ([]serp.Query, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT row_id, text FROM queries ORDER BY position`)
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

// AppendColumn opens the column transaction for date. Without overwrite an
// existing column for the date is rejected. With overwrite only the newest
// column may be replaced; its cells are cleared and the handle reused.
func (s *SQLiteStore) AppendColumn(ctx context.Context, date string, overwrite bool) (serp.ColumnHandle, error) {
	if _, err := time.Parse(serp.ColumnDateLayout, date); err != nil {
		return 0, fmt.Errorf("invalid column date %q: %w", date, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("begin column transaction: %w", err)
		}
		s.tx = tx
	}

	var newest sql.NullString
	if err := s.tx.QueryRowContext(ctx, `SELECT MAX(run_date) FROM columns`).Scan(&newest); err != nil {
		return 0, fmt.Errorf("read newest column date: %w", err)
	}

	var existing sql.NullInt64
	err := s.tx.QueryRowContext(ctx, `SELECT id FROM columns WHERE run_date = ?`, date).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("look up column date: %w", err)
	}

	if existing.Valid {
		if !overwrite {
			return 0, fmt.Errorf("%w: %s", serp.ErrColumnExists, date)
		}
		if newest.Valid && newest.String != date {
			return 0, fmt.Errorf("%w: %s", serp.ErrColumnImmutable, date)
		}
		if _, err := s.tx.ExecContext(ctx, `DELETE FROM cells WHERE column_id = ?`, existing.Int64); err != nil {
			return 0, fmt.Errorf("clear overwritten column: %w", err)
		}
		return serp.ColumnHandle(existing.Int64), nil
	}

	if newest.Valid && date < newest.String {
		return 0, fmt.Errorf("%w: %s is older than %s", serp.ErrColumnOutOfOrder, date, newest.String)
	}

	res, err := s.tx.ExecContext(ctx, `INSERT INTO columns (run_date) VALUES (?)`, date)
	if err != nil {
		return 0, fmt.Errorf("insert column: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read column id: %w", err)
	}
	return serp.ColumnHandle(id), nil
}

// WriteCell stages one cell in the open column. A nil count writes the
// explicit absent marker (SQL NULL), distinguishable from a zero result.
func (s *SQLiteStore) WriteCell(ctx context.Context, rowID string, col serp.ColumnHandle, count *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errors.New("no open column transaction")
	}
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO cells (row_id, column_id, result_count)
VALUES (?, ?, ?)
ON CONFLICT (row_id, column_id) DO UPDATE SET result_count = excluded.result_count`,
		rowID, int64(col), count,
	)
	if err != nil {
		return fmt.Errorf("write cell %s: %w", rowID, err)
	}
	return nil
}

// Commit makes the staged column durable and visible. Calling it with no
// staged column is a no-op.
func (s *SQLiteStore) Commit(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		return fmt.Errorf("commit column: %w", err)
	}
	s.tx = nil
	return nil
}

// Rollback discards the staged column, leaving the table unchanged.
func (s *SQLiteStore) Rollback(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback column: %w", err)
	}
	return nil
}

// AddQuery appends a query row at the end of the tracked list.
func (s *SQLiteStore) AddQuery(ctx context.Context, q serp.Query) error {
	if q.RowID == "" {
		return errors.New("row id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO queries (row_id, position, text)
VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM queries), ?)`,
		q.RowID, q.Text,
	)
	if err != nil {
		return fmt.Errorf("add query: %w", err)
	}
	return nil
}

// ListColumns returns the committed column dates in append order.
func (s *SQLiteStore) ListColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_date FROM columns ORDER BY id`)
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

// ReadColumn returns the committed cells of the column for date, keyed by
// row id. Absent cells come back as nil values.
func (s *SQLiteStore) ReadColumn(ctx context.Context, date string) (map[string]*int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.row_id, c.result_count
FROM cells c
JOIN columns col ON col.id = c.column_id
WHERE col.run_date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("read column %s: %w", date, err)
	}
	defer rows.Close()

	out := make(map[string]*int64)
	for rows.Next() {
		var rowID string
		var count sql.NullInt64
		if err := rows.Scan(&rowID, &count); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		if count.Valid {
			v := count.Int64
			out[rowID] = &v
		} else {
			out[rowID] = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return out, nil
}
