// Package llm builds OpenAI API clients scoped to a caller's credential.
package llm

import (
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTimeout bounds one request to the OpenAI API.
const DefaultTimeout = 60 * time.Second

// ClientConfig holds the settings shared by every credential's client.
type ClientConfig struct {
	// BaseURL overrides the API endpoint, e.g. for an OpenAI-compatible proxy.
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client that authenticates with credential. Retries are
// disabled: failures surface to the caller unchanged.
func (c ClientConfig) NewClient(credential string) openai.Client {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(credential),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return openai.NewClient(opts...)
}

// APIError extracts the OpenAI API error from err, if any.
func APIError(err error) (*openai.Error, bool) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
