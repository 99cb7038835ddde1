package kv

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by the app_kv table. Statements are prepared
// per-connection by the db package.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store over an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	rows, err := p.pool.Query(ctx, "kv_get", key)
	if err != nil {
		return "", false, fmt.Errorf("kv get %q: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	if err := rows.Scan(&value); err != nil {
		return "", false, fmt.Errorf("scan kv value %q: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	if _, err := p.pool.Exec(ctx, "kv_set", key, value); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, "kv_remove", key); err != nil {
		return fmt.Errorf("kv remove %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) MultiSet(ctx context.Context, pairs map[string]string) error {
	for k, v := range pairs {
		if err := p.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) MultiRemove(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := p.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
