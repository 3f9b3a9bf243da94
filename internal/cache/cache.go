// Package cache memoizes expensive external calls in a shared key-value store.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/blake2b"
)

// DefaultTTL is how long memoized embeddings and labels stay valid.
const DefaultTTL = 7 * 24 * time.Hour

// KeyPrefix namespaces every key written by this service.
const KeyPrefix = "newslabels"

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a key-value store with per-entry expiry.
type Store interface {
	// Get returns the value for key, or ErrMiss if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. Overwrites any existing value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases the store's resources.
	Close() error
}

// Key identifies one memoized call: the operation kind, the model that
// serves it, the credential scope and the normalized input.
type Key struct {
	Kind       string
	Model      string
	Credential string
	Input      string
}

// String encodes the key for storage. Credential and input are digested so
// secrets never reach the store and key length stays bounded.
func (k Key) String() string {
	cred := blake2b.Sum256([]byte(k.Credential))
	input := blake2b.Sum256([]byte(k.Input))
	return strings.Join([]string{
		KeyPrefix,
		k.Kind,
		k.Model,
		hex.EncodeToString(cred[:16]),
		hex.EncodeToString(input[:]),
	}, ":")
}

// Config configures a Cache.
type Config struct {
	// TTL applies to every entry. Zero means DefaultTTL.
	TTL time.Duration

	// FailOpen treats store errors as misses instead of failing the call.
	FailOpen bool
}

// StatsSnapshot is a point-in-time view of cache counters.
type StatsSnapshot struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	StoreErrors int64 `json:"store_errors"`
	TTLSeconds  int64 `json:"ttl_seconds"`
	// Entries is set only for stores that can count their contents.
	Entries int `json:"entries,omitempty"`
}

// sizer is implemented by stores that know how many entries they hold.
type sizer interface {
	Len() int
}

// Cache wraps a Store with keying, TTL and encoding.
type Cache struct {
	store    Store
	lookups  metric.Int64Counter
	ttl      time.Duration
	hits     atomic.Int64
	misses   atomic.Int64
	errs     atomic.Int64
	failOpen bool
}

// New creates a Cache over store.
func New(store Store, cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	lookups, err := otel.Meter("github.com/thebtf/newslabels/internal/cache").Int64Counter(
		"newslabels.cache.lookups",
		metric.WithDescription("Memoized lookups by kind and result"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create cache lookup counter")
	}

	return &Cache{
		store:    store,
		ttl:      ttl,
		failOpen: cfg.FailOpen,
		lookups:  lookups,
	}
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns current counters.
func (c *Cache) Stats() StatsSnapshot {
	snap := StatsSnapshot{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		StoreErrors: c.errs.Load(),
		TTLSeconds:  int64(c.TTL() / time.Second),
	}
	if sz, ok := c.store.(sizer); ok {
		snap.Entries = sz.Len()
	}
	return snap
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) record(ctx context.Context, kind, result string) {
	switch result {
	case "hit":
		c.hits.Add(1)
	case "miss":
		c.misses.Add(1)
	case "error":
		c.errs.Add(1)
	}
	if c.lookups != nil {
		c.lookups.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("result", result),
		))
	}
}

// Memoize returns the stored result for key, or runs compute and stores its
// result. A nil cache always computes. Concurrent misses for the same key
// may each compute; the last write wins. Compute errors are returned as-is
// and never cached.
func Memoize[T any](ctx context.Context, c *Cache, key Key, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return compute(ctx)
	}

	k := key.String()
	data, err := c.store.Get(ctx, k)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal(data, &v)
		if uerr == nil {
			c.record(ctx, key.Kind, "hit")
			return v, nil
		}
		log.Warn().Err(uerr).Str("kind", key.Kind).Msg("Discarding undecodable cache entry")
	case errors.Is(err, ErrMiss):
	default:
		c.record(ctx, key.Kind, "error")
		if !c.failOpen {
			return zero, fmt.Errorf("cache get %s: %w", key.Kind, err)
		}
		storeErrorEvent(err).Err(err).Str("kind", key.Kind).Msg("Cache read failed, computing directly")
	}

	c.record(ctx, key.Kind, "miss")
	v, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	data, err = json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode %s for cache: %w", key.Kind, err)
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.record(ctx, key.Kind, "error")
		if !c.failOpen {
			return zero, fmt.Errorf("cache set %s: %w", key.Kind, err)
		}
		storeErrorEvent(err).Err(err).Str("kind", key.Kind).Msg("Cache write failed")
	}
	return v, nil
}

// storeErrorEvent logs skipped-store errors at debug; the store already
// warned once when it became unavailable.
func storeErrorEvent(err error) *zerolog.Event {
	if errors.Is(err, ErrUnavailable) {
		return log.Debug()
	}
	return log.Warn()
}
