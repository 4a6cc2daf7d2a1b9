package kvstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps slots as rows of the kv_slots table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store over pool. The kv_slots migration must have run.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM kv_slots WHERE key=$1`

	var val []byte
	if err := p.pool.QueryRow(ctx, query, key).Scan(&val); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return val, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	const query = `
        INSERT INTO kv_slots (key, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`

	_, err := p.pool.Exec(ctx, query, key, value)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM kv_slots WHERE key=$1`

	_, err := p.pool.Exec(ctx, query, key)
	return err
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
