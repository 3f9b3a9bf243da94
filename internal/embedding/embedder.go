// Package embedding converts article text into vectors via an external
// embedding service.
package embedding

import (
	"context"
	"errors"
	"strings"
)

// ErrNoEmbedding is returned when the service answers without a vector.
var ErrNoEmbedding = errors.New("embedding: response contained no embedding")

// Embedder converts text into a fixed-length vector, scoped to the
// caller's credential.
type Embedder interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, credential, text string) ([]float64, error)

	// Model returns the embedding model identifier.
	Model() string
}

// JoinFields joins text fields with a single space, in order. A single field
// is returned unchanged.
func JoinFields(fields []string) string {
	if len(fields) == 1 {
		return fields[0]
	}
	return strings.Join(fields, " ")
}
