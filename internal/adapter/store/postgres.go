package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// psql builds statements with $n placeholders for lib/pq.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const schema = `
CREATE TABLE IF NOT EXISTS item_vectors (
	origin       TEXT        NOT NULL,
	productid    TEXT        NOT NULL,
	imgvector    TEXT        NOT NULL,
	imgextension TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (origin, productid)
);

CREATE TABLE IF NOT EXISTS item_prices (
	id         BIGSERIAL PRIMARY KEY,
	origin     TEXT             NOT NULL,
	productid  TEXT             NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	currency   TEXT             NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW()
);`

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the vector library and price history tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
