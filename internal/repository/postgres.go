package repository

import (
	"context"
	_ "embed"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/bsvalues/PACS-DataBridge/internal/database"
)

//go:embed schema/postgres.sql
var postgresSchema string

// pgxQuerier runs statements on the shared pgx pool.
type pgxQuerier struct {
	db *database.Database
}

func (q pgxQuerier) exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := q.db.Pool.Exec(ctx, query, args...)
	return err
}

func (q pgxQuerier) query(ctx context.Context, query string, args ...interface{}) (rows, error) {
	r, err := q.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (q pgxQuerier) queryRow(ctx context.Context, query string, args ...interface{}) row {
	return q.db.Pool.QueryRow(ctx, query, args...)
}

func (q pgxQuerier) ping(ctx context.Context) error {
	return q.db.Ping(ctx)
}

func (q pgxQuerier) close() error {
	q.db.Close()
	return nil
}

// NewPostgresStore creates a Store backed by the PostgreSQL pool.
func NewPostgresStore(db *database.Database) Store {
	return &sqlStore{
		q:      pgxQuerier{db: db},
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		driver: "postgres",
		schema: postgresSchema,
		encodeTime: func(t time.Time) interface{} {
			return t
		},
	}
}
