package labeling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/newslabels/internal/cache"
	"github.com/thebtf/newslabels/internal/llm"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeChatServer is an OpenAI-compatible chat completions endpoint.
type fakeChatServer struct {
	*httptest.Server
	requests []chatRequest
	reply    string
	noChoice bool
	mu       sync.Mutex
}

func newFakeChatServer(t *testing.T, reply string) *fakeChatServer {
	t.Helper()
	f := &fakeChatServer{reply: reply}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		choices := []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": f.reply},
		}}
		if f.noChoice {
			choices = []map[string]any{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   req.Model,
			"choices": choices,
		})
	}))
	t.Cleanup(f.Close)
	return f
}

func TestJoinTitles(t *testing.T) {
	assert.Equal(t, "", JoinTitles(nil))
	assert.Equal(t, "Only", JoinTitles([]string{"Only"}))
	assert.Equal(t, "First Second Third", JoinTitles([]string{"First", "Second", "Third"}))
	assert.Equal(t, " b", JoinTitles([]string{"", "b"}))
}

func TestOpenAI_Label(t *testing.T) {
	srv := newFakeChatServer(t, "Go release brings faster builds and new generic features")
	l := NewOpenAI(llm.ClientConfig{BaseURL: srv.URL})

	got, err := l.Label(context.Background(), "sk-test", "Go 1.25 released Go 1.25 is out")
	require.NoError(t, err)
	assert.Equal(t, "Go release brings faster builds and new generic features", got)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, SystemPrompt, req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "Go 1.25 released Go 1.25 is out", req.Messages[1].Content)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := newFakeChatServer(t, "")
	srv.noChoice = true
	l := NewOpenAI(llm.ClientConfig{BaseURL: srv.URL})

	_, err := l.Label(context.Background(), "sk", "x")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestOpenAI_Options(t *testing.T) {
	l := NewOpenAI(llm.ClientConfig{}, WithModel("gpt-4o-mini"), WithMaxTokens(20), WithSystemPrompt("Be brief."))
	assert.True(t, strings.HasPrefix(l.Model(), "gpt-4o-mini+"))
	assert.Len(t, l.Model(), len("gpt-4o-mini+")+8)
	assert.Equal(t, 20, l.maxTokens)
	assert.Equal(t, "Be brief.", l.systemPrompt)

	l = NewOpenAI(llm.ClientConfig{}, WithModel(""), WithMaxTokens(0), WithSystemPrompt(""))
	assert.Equal(t, DefaultModel, l.Model())
	assert.Equal(t, DefaultMaxTokens, l.maxTokens)
	assert.Equal(t, SystemPrompt, l.systemPrompt)
}

func TestOpenAI_CustomSystemPrompt(t *testing.T) {
	srv := newFakeChatServer(t, "short")
	c := cache.New(cache.NewMemoryStore(), cache.Config{})
	ctx := context.Background()

	builtin := NewCached(NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}), c)
	custom := NewCached(NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}, WithSystemPrompt("Reply with three words.")), c)

	_, err := builtin.LabelTitles(ctx, "sk", []string{"A", "B"})
	require.NoError(t, err)
	_, err = custom.LabelTitles(ctx, "sk", []string{"A", "B"})
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.requests, 2)
	assert.Equal(t, SystemPrompt, srv.requests[0].Messages[0].Content)
	assert.Equal(t, "Reply with three words.", srv.requests[1].Messages[0].Content)
	assert.Equal(t, DefaultModel, srv.requests[1].Model)
}

func TestCached_LabelTitles(t *testing.T) {
	srv := newFakeChatServer(t, "a label")
	l := NewCached(NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}), cache.New(cache.NewMemoryStore(), cache.Config{}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := l.LabelTitles(ctx, "sk", []string{"A", "B"})
		require.NoError(t, err)
		assert.Equal(t, "a label", got)
	}
	require.Len(t, srv.requests, 1)
	assert.Equal(t, "A B", srv.requests[0].Messages[1].Content)

	// Order of titles is part of the key.
	_, err := l.LabelTitles(ctx, "sk", []string{"B", "A"})
	require.NoError(t, err)
	assert.Len(t, srv.requests, 2)
}
