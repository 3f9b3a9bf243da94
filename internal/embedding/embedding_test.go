package embedding

import (
	"context"
	"encoding/json"
	"errors"
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

// fakeEmbeddingServer returns an OpenAI-compatible embeddings endpoint that
// records the inputs and API keys it receives.
type fakeEmbeddingServer struct {
	*httptest.Server
	inputs []string
	keys   []string
	status int
	mu     sync.Mutex
}

func newFakeEmbeddingServer(t *testing.T) *fakeEmbeddingServer {
	t.Helper()
	f := &fakeEmbeddingServer{status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.inputs = append(f.inputs, req.Input)
		f.keys = append(f.keys, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		status := f.status
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error","code":"invalid_api_key"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data": []map[string]any{{
				"object":    "embedding",
				"index":     0,
				"embedding": []float64{float64(len(req.Input)), 0.5, -0.25},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeEmbeddingServer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func TestJoinFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   string
	}{
		{name: "no fields", fields: nil, want: ""},
		{name: "single field as-is", fields: []string{" padded "}, want: " padded "},
		{name: "title and content", fields: []string{"Title", "Body text"}, want: "Title Body text"},
		{name: "empty title and content", fields: []string{"", ""}, want: " "},
		{name: "three fields in order", fields: []string{"a", "b", "c"}, want: "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinFields(tt.fields))
		})
	}
}

func TestOpenAI_Embed(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	e := NewOpenAI(llm.ClientConfig{BaseURL: srv.URL})

	vec, err := e.Embed(context.Background(), "sk-test", "Go 1.25 released")
	require.NoError(t, err)

	assert.Equal(t, []float64{16, 0.5, -0.25}, vec)
	assert.Equal(t, []string{"Go 1.25 released"}, srv.inputs)
	assert.Equal(t, []string{"sk-test"}, srv.keys)
	assert.Equal(t, DefaultModel, e.Model())
}

func TestOpenAI_EmbedErrorNotRetried(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	srv.status = http.StatusUnauthorized
	e := NewOpenAI(llm.ClientConfig{BaseURL: srv.URL})

	_, err := e.Embed(context.Background(), "bad-key", "text")
	require.Error(t, err)

	apiErr, ok := llm.APIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, 1, srv.calls())
}

func TestOpenAI_Options(t *testing.T) {
	e := NewOpenAI(llm.ClientConfig{}, WithModel("text-embedding-3-large"), WithDimension(256))
	assert.Equal(t, "text-embedding-3-large@256", e.Model())
	assert.Equal(t, 256, e.dim)

	e = NewOpenAI(llm.ClientConfig{}, WithModel(""))
	assert.Equal(t, DefaultModel, e.Model())
}

func TestOpenAI_EmbedDimensions(t *testing.T) {
	var dims []int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Dimensions int `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		dims = append(dims, req.Dimensions)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  DefaultModel,
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float64{1, 0}}},
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	_, err := NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}, WithDimension(2)).Embed(ctx, "sk", "a")
	require.NoError(t, err)
	_, err = NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}).Embed(ctx, "sk", "a")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 0}, dims)
}

func TestCached_DimensionSeparatesEntries(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	c := cache.New(cache.NewMemoryStore(), cache.Config{})
	ctx := context.Background()

	full := NewCached(NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}), c)
	short := NewCached(NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}, WithDimension(3)), c)

	_, err := full.Embed(ctx, "sk", "same text")
	require.NoError(t, err)
	_, err = short.Embed(ctx, "sk", "same text")
	require.NoError(t, err)

	assert.Equal(t, 2, srv.calls())
}

// countingEmbedder is an in-memory Embedder that counts calls.
type countingEmbedder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (c *countingEmbedder) Model() string { return "fake" }

func (c *countingEmbedder) Embed(_ context.Context, _, text string) ([]float64, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return []float64{float64(len(text))}, nil
}

func TestCached_EmbedFieldsHitsCache(t *testing.T) {
	next := &countingEmbedder{}
	e := NewCached(next, cache.New(cache.NewMemoryStore(), cache.Config{}))
	ctx := context.Background()

	first, err := e.EmbedFields(ctx, "sk", []string{"Title", "Content"})
	require.NoError(t, err)
	second, err := e.EmbedFields(ctx, "sk", []string{"Title", "Content"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)

	// A different credential is a different cache scope.
	_, err = e.EmbedFields(ctx, "sk-other", []string{"Title", "Content"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCached_ErrorPropagates(t *testing.T) {
	boom := errors.New("rate limited")
	next := &countingEmbedder{err: boom}
	e := NewCached(next, cache.New(cache.NewMemoryStore(), cache.Config{}))

	_, err := e.Embed(context.Background(), "sk", "x")
	assert.ErrorIs(t, err, boom)

	_, err = e.Embed(context.Background(), "sk", "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, next.calls)
}

func TestCached_WithOpenAI(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	e := NewCached(NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}), cache.New(cache.NewMemoryStore(), cache.Config{}))

	for i := 0; i < 3; i++ {
		_, err := e.EmbedFields(context.Background(), "sk", []string{"", ""})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.calls())
	assert.Equal(t, []string{" "}, srv.inputs)
}

func TestTruncator(t *testing.T) {
	tr, err := NewTruncator(10)
	require.NoError(t, err)

	short := "short text"
	got, err := tr.Truncate(short)
	require.NoError(t, err)
	assert.Equal(t, short, got)

	long := strings.Repeat("news article ", 50)
	got, err = tr.Truncate(long)
	require.NoError(t, err)
	assert.Less(t, len(got), len(long))
	assert.True(t, strings.HasPrefix(long, got))

	ids, _, err := tr.codec.Encode(got)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(ids), 10)
}

func TestOpenAI_TruncatesLongInput(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	tr, err := NewTruncator(5)
	require.NoError(t, err)
	e := NewOpenAI(llm.ClientConfig{BaseURL: srv.URL}, WithTruncator(tr))

	long := strings.Repeat("word ", 100)
	_, err = e.Embed(context.Background(), "sk", long)
	require.NoError(t, err)

	require.Len(t, srv.inputs, 1)
	assert.Less(t, len(srv.inputs[0]), len(long))
}
