package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/resilience"
	"github.com/sells-group/docfix/internal/validate"
)

// RemoteOCR extracts text through an HTTP OCR service.
type RemoteOCR struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	validator *validate.Validator
}

// NewRemoteOCR creates a RemoteOCR extractor for the given service URL.
func NewRemoteOCR(baseURL, apiKey string) *RemoteOCR {
	return &RemoteOCR{
		baseURL:   baseURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 120 * time.Second},
		validator: validate.New(),
	}
}

type remoteOCRRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

type remoteOCRResponse struct {
	Pages []remoteOCRPage `json:"pages"`
}

type remoteOCRPage struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ExtractFields uploads the document and scans the returned text for
// candidate values of the requested kinds.
func (r *RemoteOCR) ExtractFields(ctx context.Context, doc model.Document, kinds []model.FieldKind) ([]model.ExtractedField, error) {
	raw, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: read %s", doc.Path)
	}

	payload, err := json.Marshal(remoteOCRRequest{
		Filename: doc.Path,
		Content:  base64.StdEncoding.EncodeToString(raw),
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal request")
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("remote-ocr", "recognize")

	result, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*remoteOCRResponse, error) {
		return r.recognize(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	var text bytes.Buffer
	for _, page := range result.Pages {
		text.WriteString(page.Text)
		text.WriteString("\n")
	}
	return locateFields(r.validator, text.String(), kinds), nil
}

// recognize performs one OCR request. Retryable service errors are wrapped
// as transient so the caller's retry loop picks them up.
func (r *RemoteOCR) recognize(ctx context.Context, payload []byte) (*remoteOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/recognize", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("ocr: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var result remoteOCRResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal response")
	}
	return &result, nil
}
