package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS title_checks (
	name    TEXT PRIMARY KEY NOT NULL,
	checked BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_title_checks_checked ON title_checks(checked);
`

// Postgres is a ledger shared by several bot instances.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Ledger = (*Postgres)(nil)

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) Find(ctx context.Context, name string) (*Record, error) {
	var checked int64
	err := p.pool.QueryRow(ctx, "SELECT checked FROM title_checks WHERE name = $1", name).Scan(&checked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find", err)
	}
	return &Record{Name: name, CheckedAt: time.Unix(checked, 0).UTC()}, nil
}

func (p *Postgres) Insert(ctx context.Context, name string, checkedAt time.Time) error {
	if strings.TrimSpace(name) == "" {
		return storeErr("insert", errors.New("name is required"))
	}
	_, err := p.pool.Exec(ctx,
		"INSERT INTO title_checks (name, checked) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
		name, checkedAt.Unix())
	return storeErr("insert", err)
}

func (p *Postgres) DeleteBefore(ctx context.Context, threshold time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM title_checks WHERE checked < $1", threshold.Unix())
	if err != nil {
		return 0, storeErr("delete", err)
	}
	return tag.RowsAffected(), nil
}
