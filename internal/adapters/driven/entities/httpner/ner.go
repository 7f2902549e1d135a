// Package httpner provides an entity extraction adapter backed by an
// HTTP NER inference service (e.g. a spaCy or GLiNER server). The
// service receives text and returns labelled spans; labels are folded
// down to the three kinds retrieval cares about.
package httpner

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

// Ensure EntityService implements the interface.
var _ driven.EntityService = (*EntityService)(nil)

// Default configuration values.
const (
	DefaultTimeout = 20 * time.Second
)

// kindByLabel folds model label schemes down to the retrieval kinds.
var kindByLabel = map[string]string{
	"PERSON": "person",
	"PER":    "person",
	"ORG":    "org",
	"GPE":    "gpe",
	"LOC":    "gpe",
}

// Config holds configuration for the NER client.
type Config struct {
	// BaseURL is the inference service address (required).
	BaseURL string

	// Timeout is the request timeout (default: 20s).
	Timeout time.Duration
}

// EntityService extracts named entities via an HTTP inference server.
type EntityService struct {
	client  *http.Client
	baseURL string
}

type nerRequest struct {
	Text string `json:"text"`
}

type nerResponse struct {
	Entities []struct {
		Text  string `json:"text"`
		Label string `json:"label"`
	} `json:"entities"`
}

// NewEntityService creates a new NER client.
func NewEntityService(cfg Config) (*EntityService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpner: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &EntityService{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Extract returns a mapping from entity kind to the surface strings
// found in text. Labels outside the person/org/gpe fold are dropped.
func (s *EntityService) Extract(ctx context.Context, text string) (map[string][]string, error) {
	jsonBody, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/ner", bytes.NewReader(jsonBody))
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
		return nil, fmt.Errorf("ner error (status %d): %s", resp.StatusCode, string(body))
	}

	var nerResp nerResponse
	if err := json.Unmarshal(body, &nerResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	kinds := make(map[string][]string)
	seen := make(map[string]bool)
	for _, ent := range nerResp.Entities {
		kind, ok := kindByLabel[strings.ToUpper(ent.Label)]
		if !ok {
			continue
		}
		surface := strings.TrimSpace(ent.Text)
		if surface == "" {
			continue
		}
		key := kind + "\x00" + strings.ToLower(surface)
		if seen[key] {
			continue
		}
		seen[key] = true
		kinds[kind] = append(kinds[kind], surface)
	}
	return kinds, nil
}

// Close releases resources.
func (s *EntityService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
