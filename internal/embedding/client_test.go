package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeEmbedServer returns a server that answers /api/embed with a vector
// derived deterministically from the input text.
func fakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vec := make([]float32, Dimensions)
		for i := range vec {
			vec[i] = float32(len(req.Input)%13) + float32(i)*0.01
		}
		json.NewEncoder(w).Encode(map[string][][]float32{"embeddings": {vec}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed(t *testing.T) {
	srv := fakeEmbedServer(t)
	c := New(srv.URL, "nomic-embed-text")

	vec, err := c.Embed(context.Background(), "How do I solve quadratic equations?")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != Dimensions {
		t.Errorf("vector length = %d, want %d", len(vec), Dimensions)
	}

	// Identical input yields identical vectors.
	again, err := c.Embed(context.Background(), "How do I solve quadratic equations?")
	if err != nil {
		t.Fatalf("Embed again: %v", err)
	}
	for i := range vec {
		if vec[i] != again[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, vec[i], again[i])
		}
	}
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	srv := fakeEmbedServer(t)
	c := New(srv.URL, "nomic-embed-text")

	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := c.Embed(context.Background(), input); !errors.Is(err, ErrGenerationFailed) {
			t.Errorf("Embed(%q) = %v, want ErrGenerationFailed", input, err)
		}
	}
}

func TestEmbedRejectsOversizedInput(t *testing.T) {
	srv := fakeEmbedServer(t)
	c := New(srv.URL, "nomic-embed-text")

	huge := strings.Repeat("a", MaxInputBytes+1)
	if _, err := c.Embed(context.Background(), huge); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("oversized Embed = %v, want ErrGenerationFailed", err)
	}
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "nomic-embed-text")

	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Embed with failing server = %v, want ErrGenerationFailed", err)
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][][]float32{"embeddings": {{0.1, 0.2, 0.3}}})
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "nomic-embed-text")

	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Embed with 3-dim response = %v, want ErrGenerationFailed", err)
	}
}

func TestEmbedBatch(t *testing.T) {
	srv := fakeEmbedServer(t)
	c := New(srv.URL, "nomic-embed-text")

	vecs, err := c.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != Dimensions {
			t.Errorf("vector %d length = %d, want %d", i, len(v), Dimensions)
		}
	}

	if vecs, err := c.EmbedBatch(context.Background(), nil); err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}
