package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier is the subset of pgxpool.Pool used by PostgresTable
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPostgresPool opens and pings a pgx connection pool
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return pool, nil
}

// EnsurePostgresSchema creates the shared kv_items table if it does not exist
func EnsurePostgresSchema(ctx context.Context, db PgxQuerier) error {
	_, err := db.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS kv_items (
		tbl        TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tbl, key)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create kv_items table: %w", err)
	}
	return nil
}

// PostgresTable stores items of one logical table in the shared kv_items table
type PostgresTable struct {
	db    PgxQuerier
	table string
}

func NewPostgresTable(db PgxQuerier, table string) *PostgresTable {
	return &PostgresTable{db: db, table: table}
}

func (p *PostgresTable) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var value string
	err := p.db.QueryRow(ctx,
		`SELECT value FROM kv_items WHERE tbl = $1 AND key = $2`,
		p.table, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return []byte(value), nil
}

func (p *PostgresTable) Put(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := p.db.Exec(ctx, `
	INSERT INTO kv_items (tbl, key, value, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (tbl, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, p.table, key, string(value))
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (p *PostgresTable) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, `DELETE FROM kv_items WHERE tbl = $1 AND key = $2`, p.table, key)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresTable) Scan(ctx context.Context, limit int) ([]Item, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx,
		`SELECT key, value FROM kv_items WHERE tbl = $1 ORDER BY updated_at DESC LIMIT $2`,
		p.table, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to read item: %w", err)
		}
		items = append(items, Item{Key: key, Value: []byte(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}
