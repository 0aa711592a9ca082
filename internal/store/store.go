// Package store persists the title-check ledger: the set of posts that have
// already been processed and when. A record's presence is the only signal that
// a post must not be processed again.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/flaircheck/internal/config"
)

// Record marks one processed post.
type Record struct {
	Name      string    // post fullname
	CheckedAt time.Time // second precision
}

// Ledger is the persistence contract of the processing pipeline. Implementations
// must be safe for concurrent use; each post name is touched independently.
type Ledger interface {
	// Find returns the record for name, or nil when the post was never processed.
	Find(ctx context.Context, name string) (*Record, error)
	// Insert records name as processed at checkedAt. Inserting an existing name is a no-op.
	Insert(ctx context.Context, name string, checkedAt time.Time) error
	// DeleteBefore removes every record checked strictly before threshold and returns how many.
	DeleteBefore(ctx context.Context, threshold time.Time) (int64, error)
	Close() error
}

// Error wraps every storage failure returned through Ledger.
type Error struct {
	Op  string // find, insert, delete
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Open connects the ledger backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Ledger, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
