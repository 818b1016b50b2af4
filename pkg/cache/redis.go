package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned by Get when the key is absent.
	ErrMiss = errors.New("cache miss")
	// ErrStale is returned by Fill when the key was invalidated after the
	// caller took its version.
	ErrStale = errors.New("cache entry invalidated")
)

type Store struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (s *Store) Key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *Store) Get(ctx context.Context, key string, dst any) error {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func versionKey(key string) string {
	return key + ":v"
}

// Version returns the invalidation counter of key. Take it before loading the
// value from the source of truth and pass it to Fill.
func (s *Store) Version(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Get(ctx, versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Fill stores v under key only if no Invalidate ran since version was read.
func (s *Store) Fill(ctx context.Context, key string, version int64, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	vk := versionKey(key)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}, vk)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

// Invalidate deletes key and bumps its version so that fills started earlier
// are discarded.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	vk := versionKey(key)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, vk)
		p.Expire(ctx, vk, 2*s.ttl)
		p.Del(ctx, key)
		return nil
	})
	return err
}
