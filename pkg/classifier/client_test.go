package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan-0042.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))
	return path
}

func TestClassify_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/classify", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "scan-0042.pdf", header.Filename)

		json.NewEncoder(w).Encode(Classification{TemplateID: "customs-declaration", Confidence: 0.97})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	got, err := client.Classify(context.Background(), writeTestDoc(t))

	require.NoError(t, err)
	assert.Equal(t, "customs-declaration", got.TemplateID)
	assert.InDelta(t, 0.97, got.Confidence, 1e-9)
}

func TestClassify_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unreadable document"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Classify(context.Background(), writeTestDoc(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClassify_MissingFile(t *testing.T) {
	t.Parallel()

	client := NewClient("http://127.0.0.1:0")
	_, err := client.Classify(context.Background(), "/nonexistent/scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}
