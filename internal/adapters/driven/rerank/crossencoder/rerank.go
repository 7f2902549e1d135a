// Package crossencoder provides a rerank adapter for text-embeddings-
// inference style servers exposing a /rerank endpoint with a
// cross-encoder model (e.g. bge-reranker).
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
)

// Ensure RerankService implements the interface.
var _ driven.RerankService = (*RerankService)(nil)

// DefaultTimeout bounds one batch call; a query that times out falls
// back to the fused ordering upstream.
const DefaultTimeout = 30 * time.Second

// Config holds configuration for the rerank client.
type Config struct {
	// BaseURL is the inference server address (required).
	BaseURL string

	// Timeout is the per-batch request timeout (default: 30s).
	Timeout time.Duration
}

// RerankService scores (query, passage) pairs with a cross-encoder.
type RerankService struct {
	client  *http.Client
	baseURL string
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

// rerankResult is one scored passage; the server returns them sorted
// by relevance with the original index attached.
type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewRerankService creates a new cross-encoder client.
func NewRerankService(cfg Config) (*RerankService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("crossencoder: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &RerankService{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Score returns one relevance score per passage, in input order.
func (s *RerankService) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(rerankRequest{Query: query, Texts: passages})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank error (status %d): %s", resp.StatusCode, string(body))
	}

	var results []rerankResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	scores := make([]float64, len(passages))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}

// Close releases resources.
func (s *RerankService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
