// Package classifier provides a client for the document template
// classification service.
package classifier

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the template classification operations.
type Client interface {
	// Classify uploads a scanned document and returns the detected template
	// id with the model's confidence.
	Classify(ctx context.Context, path string) (*Classification, error)
}

// Classification is the service verdict for one document.
type Classification struct {
	TemplateID string  `json:"template_id"`
	Confidence float64 `json:"confidence"`
}

// Option configures the classifier client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a classifier client for the given base URL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Classify(ctx context.Context, path string) (*Classification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: open %s", path)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("document", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", pr)
	if err != nil {
		return nil, eris.Wrap(err, "classifier: create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "classifier: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "classifier: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("classifier: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result Classification
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "classifier: unmarshal response")
	}
	return &result, nil
}
