// Package labeling produces a short descriptive label for a group of
// article titles via an external text-generation service.
package labeling

import (
	"context"
	"errors"
	"strings"

	"github.com/thebtf/newslabels/internal/cache"
)

// KindLabel is the cache key kind for labels.
const KindLabel = "label"

// ErrNoChoices is returned when the service answers without any completion.
var ErrNoChoices = errors.New("labeling: response contained no choices")

// Labeler summarizes text into a label, scoped to the caller's credential.
type Labeler interface {
	// Label returns a short label for text.
	Label(ctx context.Context, credential, text string) (string, error)

	// Model returns the text-generation model identifier.
	Model() string
}

// JoinTitles joins titles with a single space, in order.
func JoinTitles(titles []string) string {
	if len(titles) == 1 {
		return titles[0]
	}
	return strings.Join(titles, " ")
}

// Cached memoizes a Labeler by (credential, joined titles).
type Cached struct {
	next  Labeler
	cache *cache.Cache
}

var _ Labeler = (*Cached)(nil)

// NewCached wraps next with c. A nil cache disables memoization.
func NewCached(next Labeler, c *cache.Cache) *Cached {
	return &Cached{next: next, cache: c}
}

// Model returns the wrapped labeler's model.
func (c *Cached) Model() string {
	return c.next.Model()
}

// Label returns the memoized label for text.
func (c *Cached) Label(ctx context.Context, credential, text string) (string, error) {
	key := cache.Key{
		Kind:       KindLabel,
		Model:      c.next.Model(),
		Credential: credential,
		Input:      text,
	}
	return cache.Memoize(ctx, c.cache, key, func(ctx context.Context) (string, error) {
		return c.next.Label(ctx, credential, text)
	})
}

// LabelTitles joins titles and returns their memoized label.
func (c *Cached) LabelTitles(ctx context.Context, credential string, titles []string) (string, error) {
	return c.Label(ctx, credential, JoinTitles(titles))
}
