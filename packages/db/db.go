// Package db
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gradcafe/packages/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrFatal marks errors after which a load run is abandoned: the connection
// or database itself is unusable, rather than one of the rows.
var ErrFatal = errors.New("fatal database error")

// DB is the slice of *pgxpool.Pool the storage layer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	DB    DB
	pool  *pgxpool.Pool
	table string
}

// New opens a pool and checks it is reachable.
func New(ctx context.Context, databaseURL, table string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create connection pool: %w", ErrFatal, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: unable to reach database: %w", ErrFatal, err)
	}
	s := NewWithDB(pool, table)
	s.pool = pool
	return s, nil
}

func NewWithDB(db DB, table string) *Storage {
	return &Storage{
		DB:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// Table is the quoted table name.
func (s *Storage) Table() string {
	return s.table
}

func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Storage) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// EnsureTable creates the applicant table when it does not exist yet.
func (s *Storage) EnsureTable(ctx context.Context) error {
	defer metrics.ObserveQuery("ensure_table", time.Now())
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			p_id SERIAL PRIMARY KEY,
			program TEXT,
			comments TEXT,
			date_added DATE,
			url TEXT UNIQUE,
			status TEXT,
			term TEXT,
			us_or_international TEXT,
			gpa FLOAT,
			gre FLOAT,
			gre_v FLOAT,
			gre_aw FLOAT,
			degree TEXT,
			llm_generated_program TEXT,
			llm_generated_university TEXT
		)`, s.table)
	if _, err := s.DB.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: failed to create table %s: %w", ErrFatal, s.table, err)
	}
	slog.Debug("Table ready", "table", s.table)
	return nil
}

func (s *Storage) RowCount(ctx context.Context) (int64, error) {
	defer metrics.ObserveQuery("row_count", time.Now())
	var n int64
	if err := s.DB.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// isFatal reports whether err means the database, not the data, is at fault.
// Anything that is not a server-side error (closed connection, cancelled
// context, dial failure) is fatal too.
func isFatal(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return true
	}
	if len(pgErr.Code) < 2 {
		return true
	}
	switch pgErr.Code[:2] {
	case "22", "23":
		// data exception, integrity constraint violation
		return false
	default:
		return true
	}
}
