package embedding

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/newslabels/internal/llm"
)

// DefaultModel is the embedding model used for articles.
const DefaultModel = "text-embedding-3-small"

// OpenAI implements Embedder with the OpenAI embeddings API. A client is
// built per call from the caller's credential.
type OpenAI struct {
	truncator *Truncator
	client    llm.ClientConfig
	model     string
	dim       int
}

var _ Embedder = (*OpenAI)(nil)

// Option configures an OpenAI embedder.
type Option func(*OpenAI)

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(o *OpenAI) {
		if model != "" {
			o.model = model
		}
	}
}

// WithDimension requests vectors of dim dimensions. Zero keeps the model default.
func WithDimension(dim int) Option {
	return func(o *OpenAI) { o.dim = dim }
}

// WithTruncator caps input length before it is sent.
func WithTruncator(t *Truncator) Option {
	return func(o *OpenAI) { o.truncator = t }
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(client llm.ClientConfig, opts ...Option) *OpenAI {
	o := &OpenAI{client: client, model: DefaultModel}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Model identifies the embedding space: the model name, plus the requested
// dimension when one is set. Cache keys include it.
func (o *OpenAI) Model() string {
	if o.dim > 0 {
		return o.model + "@" + strconv.Itoa(o.dim)
	}
	return o.model
}

// Embed returns the embedding of text.
func (o *OpenAI) Embed(ctx context.Context, credential, text string) ([]float64, error) {
	if o.truncator != nil {
		truncated, err := o.truncator.Truncate(text)
		if err != nil {
			return nil, fmt.Errorf("truncate embedding input: %w", err)
		}
		if len(truncated) < len(text) {
			log.Debug().
				Int("original_bytes", len(text)).
				Int("truncated_bytes", len(truncated)).
				Msg("Embedding input truncated to model context")
		}
		text = truncated
	}

	params := openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.dim > 0 {
		params.Dimensions = openai.Int(int64(o.dim))
	}

	client := o.client.NewClient(credential)
	resp, err := client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoEmbedding
	}
	return resp.Data[0].Embedding, nil
}
