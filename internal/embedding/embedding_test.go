package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openmemory/openmemory/types"
)

func TestDeterministicEmbedDimension(t *testing.T) {
	d := NewDeterministic(8)
	vec, err := d.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("len(vec) = %d, want 8", len(vec))
	}
}

func TestDeterministicEmbedDeterministic(t *testing.T) {
	d := NewDeterministic(16)
	a, err := d.Embed(context.Background(), "same input")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	b, err := d.Embed(context.Background(), "same input")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestDeterministicEmbedEmptyText(t *testing.T) {
	d := NewDeterministic(8)
	_, err := d.Embed(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty text")
	}
	var typedErr *types.Error
	if !errors.As(err, &typedErr) || typedErr.Code != types.ErrEmbedderUnavailable {
		t.Fatalf("expected ErrEmbedderUnavailable, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{1, 0, 0}
	if got := CosineSimilarity(a, b); got != 1 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1", got)
	}

	c := []float64{0, 1, 0}
	if got := CosineSimilarity(a, c); got != 0 {
		t.Errorf("CosineSimilarity(orthogonal) = %v, want 0", got)
	}

	if got := CosineSimilarity(a, []float64{1, 0}); got != 0 {
		t.Errorf("CosineSimilarity(mismatched lengths) = %v, want 0", got)
	}
}

func TestHTTPEmbedSuccess(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Input == "" {
			t.Fatal("expected non-empty input")
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, "test-key", 3, 5*time.Second)
	h.client = srv.Client()

	vec, err := h.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(vec))
	}
	if h.Dimension() != 3 {
		t.Errorf("Dimension() = %d, want 3", h.Dimension())
	}
}

func TestHTTPEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, "", 5, time.Second)
	h.client = srv.Client()

	if _, err := h.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestHTTPEmbedEmptyText(t *testing.T) {
	h := NewHTTP("http://unused.invalid", "", 4, time.Second)
	if _, err := h.Embed(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}
