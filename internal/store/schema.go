package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// migrate applies the embedded schema and records its version in metadata.
// A database written by a newer flaircheck is refused rather than downgraded.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	current, err := readSchemaVersion(ctx, tx)
	if err != nil {
		return err
	}

	switch {
	case current > schemaVersion:
		return fmt.Errorf("ledger schema version %d is newer than supported %d", current, schemaVersion)
	case current < schemaVersion:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metadata(key, value) VALUES('schema_version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, strconv.Itoa(schemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// readSchemaVersion returns 0 for a fresh database.
func readSchemaVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var value string
	err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}
	return version, nil
}
