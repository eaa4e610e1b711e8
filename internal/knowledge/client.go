// Package knowledge is a thin client for the generic knowledge service
// consulted when a persona has neither materials nor links. Best effort:
// an empty result is a normal outcome, not an error.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mentora-ai/mentora/internal/retrieval"
)

const defaultTimeout = 10 * time.Second

// Client communicates with the knowledge service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Chunks []struct {
		ID      string  `json:"id"`
		Content string  `json:"content"`
		Source  string  `json:"source"`
		Score   float32 `json:"score"`
	} `json:"chunks"`
}

// Search returns up to limit ranked knowledge chunks for the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]retrieval.Item, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge search: unexpected status %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	items := make([]retrieval.Item, len(result.Chunks))
	for i, ch := range result.Chunks {
		items[i] = retrieval.Item{
			ID:      ch.ID,
			Content: ch.Content,
			Source:  ch.Source,
			Score:   ch.Score,
		}
	}
	return items, nil
}
