package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jvanderlaan/branchscan/internal/kvk"
)

// SQLiteStore implements Store on a local file using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and configures
// WAL mode so a crashed run never leaves a torn write behind.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	// One writer; also keeps :memory: databases on a single
	// connection instead of one empty database per pooled conn.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite exec %s: %w", pragma, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS companies (
	kvk_number   TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	has_branches INTEGER NOT NULL,
	checked_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_companies_has_branches ON companies(has_branches);
`

// Migrate creates the companies table if missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored record for a number, if any.
func (s *SQLiteStore) Get(ctx context.Context, n kvk.Number) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kvk_number, company_name, has_branches, checked_at FROM companies WHERE kvk_number = ?`,
		n.String(),
	)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("sqlite get %s: %w", n, err)
	}
	return rec, true, nil
}

// Put upserts rec in one statement; the prior row, if any, is
// replaced entirely.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	encoded, err := rec.Outcome.encode()
	if err != nil {
		return err
	}
	checkedAt := rec.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO companies (kvk_number, company_name, has_branches, checked_at) VALUES (?, ?, ?, ?)`,
		rec.Number.String(), rec.Name, encoded, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", rec.Number, err)
	}
	return nil
}

// ListPositive returns every positive record in identifier order.
func (s *SQLiteStore) ListPositive(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kvk_number, company_name, has_branches, checked_at FROM companies WHERE has_branches = 1 ORDER BY kvk_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite list positive: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan positive: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite iterate positive: %w", err)
	}
	return records, nil
}

func scanRecord(scan func(dest ...any) error) (Record, error) {
	var (
		number    string
		name      string
		encoded   int
		checkedAt time.Time
	)
	if err := scan(&number, &name, &encoded, &checkedAt); err != nil {
		return Record{}, err
	}
	outcome, err := decodeOutcome(encoded)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Number:    kvk.Number(number),
		Name:      name,
		Outcome:   outcome,
		CheckedAt: checkedAt,
	}, nil
}
