// Package embedding talks to a local Ollama instance to turn text into
// fixed-length vectors. The rest of the system treats it as a black box:
// deterministic for identical input, rejecting empty or oversized input.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrGenerationFailed wraps every failure to produce an embedding. Callers
// must not treat it as "no match": retrieval cannot proceed without a
// query vector.
var ErrGenerationFailed = errors.New("embedding generation failed")

// Dimensions is the embedding width shared by every stored material
// vector. Vectors of any other width are rejected at the client boundary
// so a model misconfiguration cannot poison the store.
const Dimensions = 768

// MaxInputBytes bounds the text sent to the embedding model per request.
const MaxInputBytes = 32 << 10 // 32KB

// Client generates embeddings via the Ollama /api/embed endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Client for the given Ollama base URL and embedding model.
func New(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrGenerationFailed)
	}
	if len(text) > MaxInputBytes {
		return nil, fmt.Errorf("%w: input of %d bytes exceeds limit of %d", ErrGenerationFailed, len(text), MaxInputBytes)
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrGenerationFailed, resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrGenerationFailed, err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: empty embeddings array", ErrGenerationFailed)
	}

	vec := result.Embeddings[0]
	if len(vec) != Dimensions {
		return nil, fmt.Errorf("%w: model returned %d dimensions, want %d", ErrGenerationFailed, len(vec), Dimensions)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the model.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := c.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
