package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the default single-file ledger.
type SQLite struct {
	db *sql.DB
}

var _ Ledger = (*SQLite)(nil)

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes the concurrent per-post lookups and inserts.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Find(ctx context.Context, name string) (*Record, error) {
	if s == nil || s.db == nil {
		return nil, storeErr("find", errors.New("store is not initialized"))
	}

	var checked int64
	err := s.db.QueryRowContext(ctx, "SELECT checked FROM title_checks WHERE name = ?", name).Scan(&checked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find", fmt.Errorf("select %s: %w", name, err))
	}

	return &Record{Name: name, CheckedAt: time.Unix(checked, 0).UTC()}, nil
}

func (s *SQLite) Insert(ctx context.Context, name string, checkedAt time.Time) error {
	if s == nil || s.db == nil {
		return storeErr("insert", errors.New("store is not initialized"))
	}
	if strings.TrimSpace(name) == "" {
		return storeErr("insert", errors.New("name is required"))
	}
	if checkedAt.IsZero() {
		return storeErr("insert", errors.New("checked time is required"))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO title_checks (name, checked) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, checkedAt.Unix())
	if err != nil {
		return storeErr("insert", fmt.Errorf("insert %s: %w", name, err))
	}
	return nil
}

func (s *SQLite) DeleteBefore(ctx context.Context, threshold time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storeErr("delete", errors.New("store is not initialized"))
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM title_checks WHERE checked < ?", threshold.Unix())
	if err != nil {
		return 0, storeErr("delete", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of records; used by diagnostics.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM title_checks").Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}
