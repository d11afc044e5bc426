package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix = "prayer:ledger:"
	redisTTL    = (RetainDays + 1) * 24 * time.Hour
)

// Redis stores one key per record using SETNX, so concurrent daemons sharing
// the server agree on who fired. Records expire after three days on their own.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// OpenRedis connects to addr and pings it.
func OpenRedis(ctx context.Context, addr, password string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return NewRedis(rdb), nil
}

func (r *Redis) HasFired(ctx context.Context, key Key) (bool, error) {
	n, err := r.rdb.Exists(ctx, redisPrefix+key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *Redis) MarkFired(ctx context.Context, key Key, at time.Time) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, redisPrefix+key.String(), at.UTC().Format(time.RFC3339Nano), redisTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Prune(ctx context.Context, today time.Time) (int, error) {
	cutoff := PruneCutoff(today)
	keys, err := r.scan(ctx)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, k := range keys {
		key, err := ParseKey(strings.TrimPrefix(k, redisPrefix))
		if err != nil || key.Date < cutoff {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := r.rdb.Del(ctx, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

func (r *Redis) List(ctx context.Context) ([]Record, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	recs := make([]Record, 0, len(keys))
	for i, k := range keys {
		key, err := ParseKey(strings.TrimPrefix(k, redisPrefix))
		if err != nil {
			continue
		}
		s, ok := vals[i].(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		at, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			continue
		}
		recs = append(recs, Record{Key: key, FiredAt: at})
	}
	sortRecords(recs)
	return recs, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
