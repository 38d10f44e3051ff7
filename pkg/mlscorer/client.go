// Package mlscorer provides a client for the external ML field-scoring
// service that proposes corrections for garbled OCR text.
package mlscorer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the scoring operations.
type Client interface {
	// Score asks the model for correction candidates for a raw field value.
	// Candidates are returned in descending probability order.
	Score(ctx context.Context, fieldKind, text string) ([]Candidate, error)
}

// Candidate is a single proposed correction with its model probability.
type Candidate struct {
	Value       string  `json:"value"`
	Probability float64 `json:"probability"`
}

type scoreRequest struct {
	FieldKind string `json:"field_kind"`
	Text      string `json:"text"`
}

type scoreResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Option configures the scorer client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxAttempts overrides the number of attempts per Score call.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

type httpClient struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
}

// NewClient creates a scorer client for the given base URL. The API key may
// be empty for deployments behind a private network.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:     rate.NewLimiter(10, 10),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// doScore executes the request with exponential backoff on transient
// failures. Returns the response body on success.
func (c *httpClient) doScore(ctx context.Context, payload []byte) ([]byte, error) {
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "mlscorer: rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/score", bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "mlscorer: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, eris.Wrap(lastErr, "mlscorer: request failed")
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "mlscorer: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < c.maxAttempts {
			lastErr = eris.Errorf("mlscorer: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("mlscorer: unexpected status %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}

	return nil, eris.Wrap(lastErr, "mlscorer: request failed")
}

func (c *httpClient) Score(ctx context.Context, fieldKind, text string) ([]Candidate, error) {
	payload, err := json.Marshal(scoreRequest{FieldKind: fieldKind, Text: text})
	if err != nil {
		return nil, eris.Wrap(err, "mlscorer: marshal request")
	}

	body, err := c.doScore(ctx, payload)
	if err != nil {
		return nil, err
	}

	var result scoreResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "mlscorer: unmarshal response")
	}
	return result.Candidates, nil
}
