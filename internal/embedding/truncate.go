package embedding

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// MaxInputTokens is the context length of the OpenAI embedding models.
const MaxInputTokens = 8191

// Truncator cuts text to a token budget using the cl100k_base encoding that
// the OpenAI embedding models share.
type Truncator struct {
	codec     tokenizer.Codec
	maxTokens int
}

// NewTruncator creates a Truncator keeping at most maxTokens tokens.
func NewTruncator(maxTokens int) (*Truncator, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = MaxInputTokens
	}
	return &Truncator{codec: codec, maxTokens: maxTokens}, nil
}

// Truncate returns text unchanged when it fits, otherwise its first
// maxTokens tokens.
func (t *Truncator) Truncate(text string) (string, error) {
	// Every token covers at least one byte.
	if len(text) <= t.maxTokens {
		return text, nil
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return "", err
	}
	if len(ids) <= t.maxTokens {
		return text, nil
	}
	return t.codec.Decode(ids[:t.maxTokens])
}
