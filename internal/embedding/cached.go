package embedding

import (
	"context"

	"github.com/thebtf/newslabels/internal/cache"
)

// KindEmbedding is the cache key kind for embeddings.
const KindEmbedding = "embedding"

// Cached memoizes an Embedder by (credential, text). The service is treated
// as deterministic for identical input.
type Cached struct {
	next  Embedder
	cache *cache.Cache
}

var _ Embedder = (*Cached)(nil)

// NewCached wraps next with c. A nil cache disables memoization.
func NewCached(next Embedder, c *cache.Cache) *Cached {
	return &Cached{next: next, cache: c}
}

// Model returns the wrapped embedder's model.
func (c *Cached) Model() string {
	return c.next.Model()
}

// Embed returns the memoized embedding of text.
func (c *Cached) Embed(ctx context.Context, credential, text string) ([]float64, error) {
	key := cache.Key{
		Kind:       KindEmbedding,
		Model:      c.next.Model(),
		Credential: credential,
		Input:      text,
	}
	return cache.Memoize(ctx, c.cache, key, func(ctx context.Context) ([]float64, error) {
		return c.next.Embed(ctx, credential, text)
	})
}

// EmbedFields joins fields and returns their memoized embedding.
func (c *Cached) EmbedFields(ctx context.Context, credential string, fields []string) ([]float64, error) {
	return c.Embed(ctx, credential, JoinFields(fields))
}
