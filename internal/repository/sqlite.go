package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// sqliteTimeLayout is fixed width so text timestamps sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

type sqlQuerier struct {
	db *sql.DB
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

func (q sqlQuerier) exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}

func (q sqlQuerier) query(ctx context.Context, query string, args ...interface{}) (rows, error) {
	r, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{r}, nil
}

func (q sqlQuerier) queryRow(ctx context.Context, query string, args ...interface{}) row {
	return q.db.QueryRowContext(ctx, query, args...)
}

func (q sqlQuerier) ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

func (q sqlQuerier) close() error {
	return q.db.Close()
}

// OpenSQLite opens (creating if needed) a SQLite store at path and applies
// the schema. MemoryPath gives a throwaway database.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		path = "databridge.db"
	}
	memory := path == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas apply per connection and each ":memory:" connection is its own
	// database, so the pool holds exactly one.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &sqlStore{
		q:      sqlQuerier{db: db},
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		driver: "sqlite",
		schema: sqliteSchema,
		encodeTime: func(t time.Time) interface{} {
			return t.UTC().Format(sqliteTimeLayout)
		},
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
