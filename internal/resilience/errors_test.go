package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("parse failure"), false},
		{"transient wrapper", NewTransientError(errors.New("overloaded"), 529), true},
		{"wrapped transient", fmt.Errorf("scorer: %w", NewTransientError(errors.New("busy"), 503)), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"io timeout string", errors.New("read tcp 10.0.0.1:443: i/o timeout"), true},
		{"no such host", errors.New("dial tcp: lookup scorer.internal: no such host"), true},
		{"validation failure", errors.New("field text is empty"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be permanent", code)
		}
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("x"), 503)); got != "transient" {
		t.Errorf("expected transient, got %s", got)
	}
	if got := ClassifyError(errors.New("unsupported template")); got != "permanent" {
		t.Errorf("expected permanent, got %s", got)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner, 500)
	if !errors.Is(te, inner) {
		t.Error("expected errors.Is to find wrapped error")
	}
	if te.Error() != "inner" {
		t.Errorf("unexpected message: %s", te.Error())
	}
}
