/*
Package redis provides a Redis-backed approval.KV.

Use it when several desk instances run behind one load balancer: lockout
counters and admin sessions must then be shared. Redis expires keys on its
own, so this store does not implement approval.Purger.

KEYS:
  Every key is stored under Prefix ("approval-desk:" by default) so the desk
  can share a Redis database with other services.
*/
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/approval-desk/approval"
)

const DefaultPrefix = "approval-desk:"

type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type Store struct {
	rdb    goredis.UniversalClient
	Prefix string
}

// New connects to Redis and checks the connection with PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb, Prefix: DefaultPrefix}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(k string) string {
	return s.Prefix + k
}

// Get returns approval.ErrKeyNotFound for missing or expired keys.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, approval.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

// Set stores value under key. A ttl <= 0 never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
