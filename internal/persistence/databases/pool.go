package databases

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool opens the Postgres connection pool backing the relational store
// (sessions, interactions, facts, mistakes, tasks, reminders, calendar
// events) when RELATIONAL_DSN is configured.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return newPgPool(ctx, dsn)
}
