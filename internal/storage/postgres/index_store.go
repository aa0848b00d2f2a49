// Package postgres provides a Postgres-backed pagination index. Each page is
// one row, so a Save touches only the coordinate it confirms.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "page_index"

// IndexStoreConfig controls the Postgres connection pool used for index rows.
type IndexStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// IndexStore reads and writes page index rows.
type IndexStore struct {
	pool  querier
	table string
}

// NewIndexStore connects to Postgres using the provided config.
func NewIndexStore(ctx context.Context, cfg IndexStoreConfig) (*IndexStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &IndexStore{pool: pool, table: table}, nil
}

// NewIndexStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewIndexStoreWithPool(pool querier, table string) (*IndexStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &IndexStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *IndexStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the index table when it does not exist.
func (s *IndexStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	collection  TEXT        NOT NULL,
	thread      TEXT        NOT NULL,
	page        INTEGER     NOT NULL,
	message_ids TEXT[]      NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, thread, page)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create index table: %w", err)
	}
	return nil
}

// LoadAll reads every stored page.
func (s *IndexStore) LoadAll(ctx context.Context) (map[archive.Coordinate]archive.PageIndex, error) {
	query := fmt.Sprintf(`SELECT collection, thread, page, message_ids FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select index rows: %w", err)
	}
	defer rows.Close()

	out := make(map[archive.Coordinate]archive.PageIndex)
	for rows.Next() {
		var (
			coord archive.Coordinate
			ids   []string
		)
		if err := rows.Scan(&coord.Collection, &coord.Thread, &coord.Page, &ids); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		index := make(archive.PageIndex, len(ids))
		for i, id := range ids {
			index[i] = archive.MessageID(id)
		}
		out[coord] = index
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index rows: %w", err)
	}
	return out, nil
}

// Save upserts the row for coord.
func (s *IndexStore) Save(ctx context.Context, coord archive.Coordinate, index archive.PageIndex) error {
	ids := make([]string, len(index))
	for i, id := range index {
		ids[i] = string(id)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (collection, thread, page, message_ids, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (collection, thread, page) DO UPDATE
SET message_ids = EXCLUDED.message_ids, updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, coord.Collection, coord.Thread, coord.Page, ids); err != nil {
		return fmt.Errorf("upsert index row %s: %w", coord, err)
	}
	return nil
}
