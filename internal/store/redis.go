package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions selects the server and the sorted set holding the ledger.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Redis keeps the ledger in one sorted set: member is the post name, score the
// unix second it was checked.
type Redis struct {
	client *redis.Client
	key    string
}

var _ Ledger = (*Redis)(nil)

func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	if opts.Key == "" {
		return nil, errors.New("redis key is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return &Redis{client: client, key: opts.Key}, nil
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) Find(ctx context.Context, name string) (*Record, error) {
	score, err := r.client.ZScore(ctx, r.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find", err)
	}
	return &Record{Name: name, CheckedAt: time.Unix(int64(math.Round(score)), 0).UTC()}, nil
}

func (r *Redis) Insert(ctx context.Context, name string, checkedAt time.Time) error {
	if strings.TrimSpace(name) == "" {
		return storeErr("insert", errors.New("name is required"))
	}
	err := r.client.ZAddNX(ctx, r.key, redis.Z{
		Score:  float64(checkedAt.Unix()),
		Member: name,
	}).Err()
	return storeErr("insert", err)
}

func (r *Redis) DeleteBefore(ctx context.Context, threshold time.Time) (int64, error) {
	// "(" makes the bound exclusive.
	n, err := r.client.ZRemRangeByScore(ctx, r.key, "-inf", "("+strconv.FormatInt(threshold.Unix(), 10)).Result()
	if err != nil {
		return 0, storeErr("delete", err)
	}
	return n, nil
}
