package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ascension:account:"

type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

// NewRedisStoreFromURL parses a redis:// URL and verifies connectivity.
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", ErrUnavailable, err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) key(id string) string { return redisKeyPrefix + strings.TrimSpace(id) }

func (s *RedisStore) Load(ctx context.Context, id string) (Record, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, mapRedisError("load", err)
	}
	return decodeRecord(raw)
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	raw, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(rec.ID), raw, 0).Err(); err != nil {
		return mapRedisError("save", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return mapRedisError("clear", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

// mapRedisError classifies server replies. OOM means maxmemory was hit; any
// other failure without a server reply is a connectivity problem.
func mapRedisError(op string, err error) error {
	var rerr redis.Error
	if errors.As(err, &rerr) {
		if strings.HasPrefix(rerr.Error(), "OOM") {
			return fmt.Errorf("%w: redis %s: %v", ErrQuotaExceeded, op, err)
		}
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return fmt.Errorf("%w: redis %s: %v", ErrUnavailable, op, err)
}
