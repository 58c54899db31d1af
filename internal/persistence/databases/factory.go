package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dswagner/psychoportal/internal/config"
)

// NewManager resolves the full-text-search backend from the process
// configuration, mirroring the vector-backend selection internal/storage/
// vector does for its per-collection stores. The search index backs the
// long-term memory's keyword fallback: Postgres tsvector search
// when a search DSN (or the relational DSN) is configured, an in-process
// scan otherwise.
func NewManager(ctx context.Context, cfg config.StorageConfig) (Manager, error) {
	var m Manager
	switch cfg.SearchBackend {
	case "", "memory":
		m.Search = NewMemorySearch()
	case "postgres":
		dsn := cfg.SearchDSN
		if dsn == "" {
			dsn = cfg.RelationalDSN
		}
		if dsn == "" {
			return Manager{}, fmt.Errorf("search backend %q requires SEARCH_DSN or RELATIONAL_DSN", cfg.SearchBackend)
		}
		pool, err := newPgPool(ctx, dsn)
		if err != nil {
			return Manager{}, fmt.Errorf("connect postgres (full-text search): %w", err)
		}
		m.Search = NewPostgresSearch(pool)
	default:
		return Manager{}, fmt.Errorf("unsupported search backend: %s", cfg.SearchBackend)
	}
	return m, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 8
	pcfg.MinConns = 0
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
