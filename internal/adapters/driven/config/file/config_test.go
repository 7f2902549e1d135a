package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

const sampleConfig = `
[site]
base_url = "https://www.example.edu"
include = ["^/about", "^/people"]
exclude = ['\.pdf$']
max_pages = 200
requests_per_second = 4.0

[storage]
data_dir = "/var/lib/campusrag"

[embedding]
provider = "openai"
api_key = "sk-test"
model = "text-embedding-3-small"

[llm]
provider = "openai"
api_key = "sk-test"
model = "gpt-4o-mini"

[ner]
base_url = "http://localhost:8081"

[rerank]
base_url = "http://localhost:8082"

[ingest]
max_tokens = 400
workers = 8

[retrieval]
dense_top_k = 100
entity_boost = 1.5

[server]
addr = ":9090"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://www.example.edu", cfg.Site.BaseURL)
	assert.Equal(t, []string{"^/about", "^/people"}, cfg.Site.Include)
	assert.Equal(t, 200, cfg.Site.MaxPages)
	assert.Equal(t, 4.0, cfg.Site.RPS)
	assert.Equal(t, "/var/lib/campusrag", cfg.Storage.DataDir)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "http://localhost:8081", cfg.NER.BaseURL)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[site\nbad"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	want := &Config{
		Site:    SiteConfig{BaseURL: "https://example.edu", MaxPages: 50},
		Storage: StorageConfig{DataDir: "/tmp/data"},
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIngestSettings_OverridesMergeOntoDefaults(t *testing.T) {
	cfg := &Config{Ingest: IngestConfig{MaxTokens: 400, Workers: 8}}

	s := cfg.IngestSettings()
	defaults := domain.DefaultIngestSettings()

	assert.Equal(t, 400, s.MaxTokens)
	assert.Equal(t, 8, s.Workers)
	assert.Equal(t, defaults.MinTokens, s.MinTokens)
	assert.Equal(t, defaults.ContextWindow, s.ContextWindow)
}

func TestRetrievalSettings_OverridesMergeOntoDefaults(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{DenseTopK: 100, EntityBoost: 1.5}}

	s := cfg.RetrievalSettings()
	defaults := domain.DefaultRetrievalSettings()

	assert.Equal(t, 100, s.DenseTopK)
	assert.Equal(t, 1.5, s.EntityBoost)
	assert.Equal(t, defaults.SparseTopK, s.SparseTopK)
	assert.Equal(t, defaults.RerankThreshold, s.RerankThreshold)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\naddr = \":8080\"\n"), 0600))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", w.Current().Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Watch(ctx)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[server]\naddr = \":9090\"\n"), 0600))

	require.Eventually(t, func() bool {
		return w.Current().Server.Addr == ":9090"
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

func TestWatcher_OnReloadDeliversNewSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[retrieval]\ndense_top_k = 10\n"), 0600))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, 10, w.Current().RetrievalSettings().DenseTopK)

	reloaded := make(chan domain.RetrievalSettings, 1)
	w.OnReload = func(c *Config) {
		// Editors can fire several write events per save.
		select {
		case reloaded <- c.RetrievalSettings():
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Watch(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[retrieval]\ndense_top_k = 25\nentity_boost = 2.0\n"), 0600))

	select {
	case s := <-reloaded:
		assert.Equal(t, 25, s.DenseTopK)
		assert.Equal(t, 2.0, s.EntityBoost)
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}

	cancel()
	<-done
}
