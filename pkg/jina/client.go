// Package jina provides a client for the Jina AI embeddings API.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/radar-cli/internal/resilience"
)

// Client defines the Jina AI embedding operations.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingRequest is the body of POST /v1/embeddings.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
	Input []string `json:"input"`
}

// EmbeddingResponse is the parsed embeddings API response.
type EmbeddingResponse struct {
	Model string          `json:"model"`
	Data  []EmbeddingData `json:"data"`
	Usage EmbeddingUsage  `json:"usage"`
}

// EmbeddingData holds one vector and the input position it belongs to.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// EmbeddingUsage tracks token consumption.
type EmbeddingUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithModel selects the embedding model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTask sets the task adapter sent with each request.
func WithTask(task string) Option {
	return func(c *httpClient) {
		c.task = task
	}
}

// WithBatchSize caps the texts sent per request.
func WithBatchSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithBackoff overrides the retry policy for 429 and 5xx responses.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *httpClient) {
		c.backoff = b
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	model     string
	task      string
	batchSize int
	http      *http.Client
	limiter   *rate.Limiter
	backoff   resilience.Backoff
}

// NewClient creates a new Jina embeddings client.
func NewClient(apiKey string, opts ...Option) Client {
	b := resilience.Backoff{Attempts: 3, Initial: time.Second, Max: 8 * time.Second, Factor: 2, Jitter: 0.2}
	b.OnRetry = resilience.RetryLogger("jina", "embeddings")
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   "https://api.jina.ai",
		model:     "jina-embeddings-v3",
		task:      "text-matching",
		batchSize: 64,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 2),
		backoff: b,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *httpClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(EmbeddingRequest{Model: c.model, Task: c.task, Input: texts})
	if err != nil {
		return nil, eris.Wrap(err, "jina: marshal request")
	}

	body, err := resilience.DoVal(ctx, c.backoff, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: embeddings request failed")
	}

	var resp EmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}
	if len(resp.Data) != len(texts) {
		return nil, eris.Errorf("jina: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, eris.Errorf("jina: bad embedding index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (c *httpClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "jina: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("jina", resp.StatusCode, string(body))
	}
	return body, nil
}
