package labeling

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/openai/openai-go"
	"golang.org/x/crypto/blake2b"

	"github.com/thebtf/newslabels/internal/llm"
)

// Defaults for label generation.
const (
	DefaultModel     = "gpt-3.5-turbo-0125"
	DefaultMaxTokens = 60
	SystemPrompt     = "You always respond with only a ten word summary of what you received."
)

// OpenAI implements Labeler with the OpenAI chat completions API.
type OpenAI struct {
	client       llm.ClientConfig
	model        string
	systemPrompt string
	maxTokens    int
}

var _ Labeler = (*OpenAI)(nil)

// Option configures an OpenAI labeler.
type Option func(*OpenAI)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *OpenAI) {
		if model != "" {
			o.model = model
		}
	}
}

// WithMaxTokens bounds the label length in tokens.
func WithMaxTokens(n int) Option {
	return func(o *OpenAI) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithSystemPrompt replaces the summarization instruction.
func WithSystemPrompt(prompt string) Option {
	return func(o *OpenAI) {
		if prompt != "" {
			o.systemPrompt = prompt
		}
	}
}

// NewOpenAI creates an OpenAI labeler.
func NewOpenAI(client llm.ClientConfig, opts ...Option) *OpenAI {
	o := &OpenAI{
		client:       client,
		model:        DefaultModel,
		systemPrompt: SystemPrompt,
		maxTokens:    DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Model identifies the label generator: the chat model name, plus a short
// digest of the system prompt when it is not the built-in one. Cache keys
// include it, so changing the prompt never serves stale labels.
func (o *OpenAI) Model() string {
	if o.systemPrompt == SystemPrompt {
		return o.model
	}
	sum := blake2b.Sum256([]byte(o.systemPrompt))
	return o.model + "+" + hex.EncodeToString(sum[:4])
}

// Label asks the model for a short summary of text.
func (o *OpenAI) Label(ctx context.Context, credential, text string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.systemPrompt),
			openai.UserMessage(text),
		},
		MaxTokens: openai.Int(int64(o.maxTokens)),
	}

	client := o.client.NewClient(credential)
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
