package mlscorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/score", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "registration-number", req.FieldKind)
		assert.Equal(t, "1О27ОО132195", req.Text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(scoreResponse{Candidates: []Candidate{
			{Value: "1027700132195", Probability: 0.93},
			{Value: "1027700132196", Probability: 0.04},
		}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	got, err := client.Score(context.Background(), "registration-number", "1О27ОО132195")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1027700132195", got[0].Value)
	assert.InDelta(t, 0.93, got[0].Probability, 1e-9)
}

func TestScore_NoAuthHeaderWithoutKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(scoreResponse{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	got, err := client.Score(context.Background(), "date", "О1.О2.2О24")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScore_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(scoreResponse{Candidates: []Candidate{
			{Value: "7710140679", Probability: 0.88},
		}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key",
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithMaxAttempts(3),
	)

	start := time.Now()
	got, err := client.Score(context.Background(), "tax-id", "771О14О679")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7710140679", got[0].Value)
	assert.EqualValues(t, 2, calls.Load())
	// One backoff sleep should have happened.
	assert.GreaterOrEqual(t, time.Since(start), 1*time.Second)
}

func TestScore_PermanentErrorNoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"unsupported field kind"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	_, err := client.Score(context.Background(), "barcode", "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.EqualValues(t, 1, calls.Load())
}

func TestScore_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", WithMaxAttempts(2))
	_, err := client.Score(context.Background(), "phone", "89261234567")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.EqualValues(t, 2, calls.Load())
}

func TestScore_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(scoreResponse{})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(srv.URL, "test-key", WithMaxAttempts(1))
	_, err := client.Score(ctx, "email", "info@acme")
	require.Error(t, err)
}
