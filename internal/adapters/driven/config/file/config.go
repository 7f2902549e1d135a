// Package file provides the TOML configuration layer. A config file
// describes the site to crawl, the external model services, and the
// pipeline tunables; a watcher reloads it on change so a long-running
// server picks up edits without a restart.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/logger"
)

// Config is the full on-disk configuration.
type Config struct {
	Site      SiteConfig      `toml:"site"`
	Storage   StorageConfig   `toml:"storage"`
	Embedding ModelConfig     `toml:"embedding"`
	LLM       ModelConfig     `toml:"llm"`
	NER       ServiceConfig   `toml:"ner"`
	Rerank    ServiceConfig   `toml:"rerank"`
	Ingest    IngestConfig    `toml:"ingest"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Server    ServerConfig    `toml:"server"`
}

// SiteConfig describes the crawl target.
type SiteConfig struct {
	BaseURL  string   `toml:"base_url"`
	Include  []string `toml:"include"`
	Exclude  []string `toml:"exclude"`
	MaxPages int      `toml:"max_pages"`
	RPS      float64  `toml:"requests_per_second"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// ModelConfig configures an API-backed model service.
type ModelConfig struct {
	Provider string `toml:"provider"`
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

// ServiceConfig configures a plain HTTP inference service.
type ServiceConfig struct {
	BaseURL string `toml:"base_url"`
}

// IngestConfig overrides ingest pipeline tunables; zero values keep
// the defaults.
type IngestConfig struct {
	ContextWindow int `toml:"context_window"`
	MinTokens     int `toml:"min_tokens"`
	MaxTokens     int `toml:"max_tokens"`
	OverlapTokens int `toml:"overlap_tokens"`
	IconMaxPixels int `toml:"icon_max_pixels"`
	Workers       int `toml:"workers"`
}

// RetrievalConfig overrides retrieval tunables; zero values keep the
// defaults.
type RetrievalConfig struct {
	DenseTopK        int     `toml:"dense_top_k"`
	SparseTopK       int     `toml:"sparse_top_k"`
	RerankCandidates int     `toml:"rerank_candidates"`
	RerankThreshold  float64 `toml:"rerank_threshold"`
	EntityBoost      float64 `toml:"entity_boost"`
	Limit            int     `toml:"limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DefaultPath returns the default config file location,
// ~/.campusrag/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".campusrag", "config.toml"), nil
}

// Load reads and parses the config file. A missing file yields the
// zero config, not an error, so every setting falls back to its
// default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config file, creating its directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// IngestSettings merges the file's overrides onto the defaults.
func (c *Config) IngestSettings() domain.IngestSettings {
	s := domain.DefaultIngestSettings()
	if c.Ingest.ContextWindow > 0 {
		s.ContextWindow = c.Ingest.ContextWindow
	}
	if c.Ingest.MinTokens > 0 {
		s.MinTokens = c.Ingest.MinTokens
	}
	if c.Ingest.MaxTokens > 0 {
		s.MaxTokens = c.Ingest.MaxTokens
	}
	if c.Ingest.OverlapTokens > 0 {
		s.OverlapTokens = c.Ingest.OverlapTokens
	}
	if c.Ingest.IconMaxPixels > 0 {
		s.IconMaxPixels = c.Ingest.IconMaxPixels
	}
	if c.Ingest.Workers > 0 {
		s.Workers = c.Ingest.Workers
	}
	return s
}

// RetrievalSettings merges the file's overrides onto the defaults.
func (c *Config) RetrievalSettings() domain.RetrievalSettings {
	s := domain.DefaultRetrievalSettings()
	if c.Retrieval.DenseTopK > 0 {
		s.DenseTopK = c.Retrieval.DenseTopK
	}
	if c.Retrieval.SparseTopK > 0 {
		s.SparseTopK = c.Retrieval.SparseTopK
	}
	if c.Retrieval.RerankCandidates > 0 {
		s.RerankCandidates = c.Retrieval.RerankCandidates
	}
	if c.Retrieval.RerankThreshold > 0 {
		s.RerankThreshold = c.Retrieval.RerankThreshold
	}
	if c.Retrieval.EntityBoost > 0 {
		s.EntityBoost = c.Retrieval.EntityBoost
	}
	if c.Retrieval.Limit > 0 {
		s.DefaultLimit = c.Retrieval.Limit
	}
	return s
}

// Watcher reloads the config file on change.
type Watcher struct {
	path string

	// OnReload, when set before Watch starts, is called with each
	// successfully reloaded config.
	OnReload func(*Config)

	mu  sync.RWMutex
	cfg *Config
}

// NewWatcher loads the config and returns a watcher holding it.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, cfg: cfg}, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Watch reloads the file on write events until the context is
// cancelled. The directory is watched rather than the file so
// editor rename-and-replace saves are seen.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn("Config reload failed: %v", err)
				continue
			}
			w.mu.Lock()
			w.cfg = cfg
			w.mu.Unlock()
			logger.Info("Config reloaded from %s", w.path)
			if w.OnReload != nil {
				w.OnReload(cfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error: %v", err)
		}
	}
}
