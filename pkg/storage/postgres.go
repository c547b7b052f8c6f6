package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createObjectsTable = `
CREATE TABLE IF NOT EXISTS objects (
	path       TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage keeps each path as a row in a single objects table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to dsn and creates the objects table if needed.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createObjectsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate objects table: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) Close() {
	s.pool.Close()
}

func (s *PostgresStorage) Read(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM objects WHERE path = $1`, p).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

func (s *PostgresStorage) Write(ctx context.Context, p string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO objects (path, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, p, data)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, p string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM objects WHERE path = $1`, p)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return nil
}

func (s *PostgresStorage) List(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.TrimSuffix(prefix, "/") + "/"
	rows, err := s.pool.Query(ctx,
		`SELECT path FROM objects WHERE starts_with(path, $1) AND position('/' in substr(path, $2)) = 0 ORDER BY path`,
		dir, len(dir)+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return paths, nil
}

func (s *PostgresStorage) Exists(ctx context.Context, p string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM objects WHERE path = $1)`, p).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check existence of %s: %w", p, err)
	}
	return ok, nil
}
