package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jvanderlaan/branchscan/internal/kvk"
)

// pgPool is the subset of pgxpool.Pool the store uses, so tests can
// substitute a pgxmock pool.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on a shared Postgres database, for
// runs where several operators read the same outcome table.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres connects a pgx pool to dsn and verifies it with a ping.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres parse config: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS companies (
	kvk_number   TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	has_branches INTEGER NOT NULL,
	checked_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate creates the companies table if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get returns the stored record for a number, if any.
func (s *PostgresStore) Get(ctx context.Context, n kvk.Number) (Record, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT kvk_number, company_name, has_branches, checked_at FROM companies WHERE kvk_number = $1`,
		n.String(),
	)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("postgres get %s: %w", n, err)
	}
	return rec, true, nil
}

// Put upserts rec in one statement; the prior row, if any, is
// replaced entirely.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	encoded, err := rec.Outcome.encode()
	if err != nil {
		return err
	}
	checkedAt := rec.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (kvk_number, company_name, has_branches, checked_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kvk_number) DO UPDATE SET company_name = EXCLUDED.company_name, has_branches = EXCLUDED.has_branches, checked_at = EXCLUDED.checked_at`,
		rec.Number.String(), rec.Name, encoded, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres put %s: %w", rec.Number, err)
	}
	return nil
}

// ListPositive returns every positive record in identifier order.
func (s *PostgresStore) ListPositive(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kvk_number, company_name, has_branches, checked_at FROM companies WHERE has_branches = 1 ORDER BY kvk_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres list positive: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("postgres scan positive: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres iterate positive: %w", err)
	}
	return records, nil
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*PostgresStore)(nil)
