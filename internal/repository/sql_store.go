package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// row and rows cover the common ground of pgx and database/sql results.
type row interface {
	Scan(dest ...interface{}) error
}

type rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close()
}

// querier runs SQL against one backend.
type querier interface {
	exec(ctx context.Context, query string, args ...interface{}) error
	query(ctx context.Context, query string, args ...interface{}) (rows, error)
	queryRow(ctx context.Context, query string, args ...interface{}) row
	ping(ctx context.Context) error
	close() error
}

// sqlStore implements Store on top of a querier. Statements are built with
// squirrel so the same code serves both placeholder styles.
type sqlStore struct {
	q      querier
	sb     sq.StatementBuilderType
	driver string
	schema string
	// encodeTime converts a timestamp into the backend's column representation.
	encodeTime func(time.Time) interface{}
}

var _ Store = (*sqlStore)(nil)

func (s *sqlStore) Driver() string { return s.driver }

func (s *sqlStore) Ping(ctx context.Context) error { return s.q.ping(ctx) }

func (s *sqlStore) Close() error { return s.q.close() }

// Migrate executes the embedded schema for the backend. Every statement is
// idempotent.
func (s *sqlStore) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(s.schema) {
		if err := s.q.exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return s.q.exec(ctx, query, args...)
}

func (s *sqlStore) query(ctx context.Context, b sq.Sqlizer) (rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.q.query(ctx, query, args...)
}

func (s *sqlStore) queryRow(ctx context.Context, b sq.Sqlizer) (row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.q.queryRow(ctx, query, args...), nil
}

func (s *sqlStore) timeArg(t time.Time) interface{} {
	return s.encodeTime(t)
}

func (s *sqlStore) timePtrArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return s.encodeTime(*t)
}

// values resolves driver.Valuer arguments up front so both drivers receive
// plain strings or NULL for JSON and message columns.
func values(vs ...driver.Valuer) ([]interface{}, error) {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		dv, err := v.Value()
		if err != nil {
			return nil, err
		}
		out[i] = dv
	}
	return out, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// splitStatements splits a schema file on semicolons at line ends.
// Schema files hold no procedural bodies, so this is sufficient.
func splitStatements(schema string) []string {
	var out []string
	var b strings.Builder
	for _, line := range strings.Split(schema, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(b.String()))
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// sqlTime scans timestamps that arrive as time.Time (PostgreSQL) or as
// RFC 3339 text (SQLite).
type sqlTime struct {
	Time  time.Time
	Valid bool
}

func (t *sqlTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
	case time.Time:
		t.Time, t.Valid = v, true
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("failed to scan timestamp: unexpected %T", value)
	}
	return nil
}

func (t *sqlTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	t.Time, t.Valid = parsed, true
	return nil
}

func (t sqlTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
