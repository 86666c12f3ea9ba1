package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seantiz/deferrpc/internal/model"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS async_json_rpc_result (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id     TEXT NOT NULL UNIQUE,
    result      TEXT,
    created_at  DATETIME NOT NULL
)`

const createCreatedAtIndex = `
CREATE INDEX IF NOT EXISTS idx_async_json_rpc_result_created_at
    ON async_json_rpc_result (created_at)`

const selectColumns = `SELECT id, task_id, result, created_at FROM async_json_rpc_result`

// filterColumns lists the fields a Filter may reference.
var filterColumns = map[string]bool{
	"id":      true,
	"task_id": true,
}

// Compile-time interface satisfaction check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	nowFn func() time.Time
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createResultsTable, createCreatedAtIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate results table: %w", err)
		}
	}

	return &SQLiteStore{db: db, nowFn: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByTaskID retrieves the result recorded for taskID.
func (s *SQLiteStore) FindByTaskID(ctx context.Context, taskID string) (*model.TaskResult, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE task_id = ?`, taskID)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task result: %w", err)
	}
	return r, nil
}

// SaveResult inserts a new result record.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *model.TaskResult) error {
	if r.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", ErrInvalidResult)
	}
	if len(r.TaskID) > model.MaxTaskIDLength {
		return fmt.Errorf("%w: task_id exceeds %d characters", ErrInvalidResult, model.MaxTaskIDLength)
	}

	var encoded sql.NullString
	if r.Result != nil {
		data, err := json.Marshal(r.Result)
		if err != nil {
			return fmt.Errorf("%w: encode result: %v", ErrInvalidResult, err)
		}
		encoded = sql.NullString{String: string(data), Valid: true}
	}

	createdAt := s.nowFn().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO async_json_rpc_result (task_id, result, created_at) VALUES (?, ?, ?)`,
		r.TaskID, encoded, createdAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.TaskID)
	}
	if err != nil {
		return fmt.Errorf("insert task result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted id: %w", err)
	}
	r.ID = id
	r.CreatedAt = createdAt
	return nil
}

// FindBy returns results matching f ordered by id DESC.
func (s *SQLiteStore) FindBy(ctx context.Context, f Filter, limit, offset int) ([]*model.TaskResult, error) {
	where, args, err := buildWhere(f)
	if err != nil {
		return nil, err
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, selectColumns+where+` ORDER BY id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	var results []*model.TaskResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task results: %w", err)
	}
	return results, nil
}

// Count returns the number of results matching f.
func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args, err := buildWhere(f)
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM async_json_rpc_result`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count task results: %w", err)
	}
	return n, nil
}

// PurgeBefore deletes results created before cutoff.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM async_json_rpc_result WHERE created_at < ?`, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge task results: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(sc scanner) (*model.TaskResult, error) {
	r := &model.TaskResult{}
	var encoded sql.NullString
	if err := sc.Scan(&r.ID, &r.TaskID, &encoded, &r.CreatedAt); err != nil {
		return nil, err
	}
	if encoded.Valid && encoded.String != "null" {
		if err := json.Unmarshal([]byte(encoded.String), &r.Result); err != nil {
			return nil, fmt.Errorf("decode result for task %s: %w", r.TaskID, err)
		}
	}
	return r, nil
}

// buildWhere renders f as a WHERE clause with positional arguments. Columns
// are emitted in sorted order so the query text is stable.
func buildWhere(f Filter) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(f))
	for field := range f {
		if !filterColumns[field] {
			return "", nil, fmt.Errorf("%w: unsupported field %q", ErrInvalidFilter, field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, field+" = ?")
		args = append(args, f[field])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		code == sqlite3.SQLITE_CONSTRAINT
}
