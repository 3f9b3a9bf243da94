package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
)

// Redis connection defaults. A cache lookup must never cost more than a
// short dial, and after a failed dial Redis is skipped for DefaultRedisBackoff.
const (
	DefaultRedisConnectTimeout = time.Second
	DefaultRedisBackoff        = 5 * time.Second
)

// ErrUnavailable is returned without dialing while Redis is being skipped
// after a connection failure.
var ErrUnavailable = errors.New("cache: store unavailable")

// Pool hands out Redis connections. *redis.Pool satisfies it.
type Pool interface {
	GetContext(ctx context.Context) (redis.Conn, error)
	Close() error
}

// RedisConfig describes how to reach the shared Redis instance.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	MaxIdle        int
	MaxActive      int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

// RedisStore is a Store backed by Redis. Entries expire server-side, so they
// are shared between instances and survive process restarts.
type RedisStore struct {
	pool      Pool
	now       func() time.Time
	backoff   time.Duration
	downUntil atomic.Int64
}

var _ Store = (*RedisStore)(nil)

// NewRedisPool builds a connection pool for cfg.
func NewRedisPool(cfg RedisConfig) *redis.Pool {
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 8
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 4 * time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultRedisConnectTimeout
	}

	opts := []redis.DialOption{
		redis.DialConnectTimeout(cfg.ConnectTimeout),
		redis.DialDatabase(cfg.DB),
	}
	if cfg.Password != "" {
		opts = append(opts, redis.DialPassword(cfg.Password))
	}

	return &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		MaxActive:   cfg.MaxActive,
		IdleTimeout: cfg.IdleTimeout,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", cfg.Addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisStore creates a RedisStore over pool.
func NewRedisStore(pool Pool) *RedisStore {
	return &RedisStore{pool: pool, now: time.Now, backoff: DefaultRedisBackoff}
}

// conn returns a pooled connection, or ErrUnavailable inside the backoff
// window that follows a failed dial.
func (r *RedisStore) conn(ctx context.Context) (redis.Conn, error) {
	if until := r.downUntil.Load(); until != 0 && r.now().UnixNano() < until {
		return nil, ErrUnavailable
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		// A cancelled caller says nothing about Redis.
		if ctx.Err() == nil {
			if r.downUntil.Swap(r.now().Add(r.backoff).UnixNano()) == 0 {
				log.Warn().Err(err).Dur("backoff", r.backoff).Msg("Redis unreachable, skipping cache")
			}
		}
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	if r.downUntil.Swap(0) != 0 {
		log.Info().Msg("Redis reachable again")
	}
	return conn, nil
}

// Ping checks that Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "PING"); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the value for key, or ErrMiss if Redis has no such key.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", key))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores value under key with a server-side expiry of ttl, rounded up
// to whole seconds.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	seconds := int64((ttl + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	if _, err := redis.DoContext(conn, ctx, "SET", key, value, "EX", seconds); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *RedisStore) Close() error {
	if err := r.pool.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis pool")
		return err
	}
	return nil
}
