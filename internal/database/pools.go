package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/broker-streamer/internal/config"
)

// Connect creates a single connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Schema creates the event tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS quote_trades (
		id            UUID PRIMARY KEY,
		session_id    TEXT NOT NULL,
		instrument_id TEXT NOT NULL,
		type          TEXT NOT NULL,
		price         NUMERIC,
		volume        BIGINT NOT NULL DEFAULT 0,
		quote_time    TIMESTAMPTZ,
		server_time   TIMESTAMPTZ,
		received_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quote_book_levels (
		id            UUID PRIMARY KEY,
		session_id    TEXT NOT NULL,
		instrument_id TEXT NOT NULL,
		side          TEXT NOT NULL,
		depth         SMALLINT NOT NULL,
		price         NUMERIC,
		volume        BIGINT NOT NULL DEFAULT 0,
		orders        BIGINT NOT NULL DEFAULT 0,
		quote_time    TIMESTAMPTZ,
		server_time   TIMESTAMPTZ,
		received_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS news_items (
		id          UUID PRIMARY KEY,
		session_id  TEXT NOT NULL,
		news_id     TEXT NOT NULL,
		headline    TEXT NOT NULL,
		body        TEXT,
		format      TEXT,
		news_time   TIMESTAMPTZ,
		received_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_events (
		id              UUID PRIMARY KEY,
		session_id      TEXT NOT NULL,
		type            TEXT NOT NULL,
		account_number  TEXT,
		order_number    BIGINT,
		side            TEXT,
		instrument_id   TEXT,
		quantity        NUMERIC,
		status          TEXT,
		expiration_date DATE,
		payload         JSONB NOT NULL,
		received_at     TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the event tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
