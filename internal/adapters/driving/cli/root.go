// Package cli provides the cobra command-line interface. Commands
// call the core exclusively through the driving ports; wiring of the
// concrete adapters happens once, before the first command that needs
// them runs.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/campusrag/internal/adapters/driven/config/file"
	ollamaembed "github.com/custodia-labs/campusrag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/campusrag/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/campusrag/internal/adapters/driven/entities/httpner"
	"github.com/custodia-labs/campusrag/internal/adapters/driven/fetch"
	"github.com/custodia-labs/campusrag/internal/adapters/driven/index/vector"
	openaillm "github.com/custodia-labs/campusrag/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/campusrag/internal/adapters/driven/rerank/crossencoder"
	"github.com/custodia-labs/campusrag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
	"github.com/custodia-labs/campusrag/internal/core/ports/driving"
	"github.com/custodia-labs/campusrag/internal/core/services"
	"github.com/custodia-labs/campusrag/internal/logger"
	"github.com/custodia-labs/campusrag/internal/normalisers/web"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// Wired services. wireServices sets these before the first command
// that needs them runs; tests inject fakes instead.
var (
	cfg           *file.Config
	cfgPath       string
	store         *sqlite.Store
	pageStore     driven.PageStore
	webFetcher    driven.Fetcher
	ingestService driving.IngestService
	queryService  driving.QueryService

	// queryCore is the concrete service behind queryService, kept so
	// serve can push reloaded retrieval settings into it.
	queryCore *services.QueryService
)

var rootCmd = &cobra.Command{
	Use:   "campusrag",
	Short: "Crawl, index and query an institutional website",
	Long: `campusrag indexes the pages of an institutional website and answers
free-text questions about them, citing the pages each answer drew from.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}
		if queryService != nil {
			// Already wired, either by a previous command or a test.
			return nil
		}
		return wireServices()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.campusrag/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command and releases wired resources.
func Execute() error {
	err := rootCmd.Execute()
	if store != nil {
		store.Close() //nolint:errcheck
	}
	return err
}

// wireServices builds the adapter stack from the config file and
// hands it to the core services.
func wireServices() error {
	path := cfgFile
	if path == "" {
		var err error
		path, err = file.DefaultPath()
		if err != nil {
			return err
		}
	}

	loaded, err := file.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded
	cfgPath = path

	s, err := sqlite.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	store = s
	pageStore = s.PageStore()
	sparse := s.SparseIndex()

	vectorIndex := vector.New()
	if err := warmVectorIndex(pageStore, vectorIndex); err != nil {
		logger.Warn("Warming vector index failed: %v", err)
	}

	webFetcher = fetch.New(fetch.Config{})

	embedder, err := buildEmbedding()
	if err != nil {
		return err
	}
	entityService, err := buildEntities()
	if err != nil {
		return err
	}
	rerankService, err := buildRerank()
	if err != nil {
		return err
	}
	llmService, err := buildLLM()
	if err != nil {
		return err
	}

	ingestService = services.NewIngestService(
		webFetcher,
		web.New(),
		pageStore,
		sparse,
		vectorIndex,
		embedder,
		entityService,
		cfg.IngestSettings(),
	)
	queryCore = services.NewQueryService(
		pageStore,
		sparse,
		vectorIndex,
		embedder,
		entityService,
		rerankService,
		llmService,
		cfg.RetrievalSettings(),
	)
	queryService = queryCore
	return nil
}

// warmVectorIndex loads every stored embedding into the in-memory
// vector index.
func warmVectorIndex(ps driven.PageStore, idx *vector.Index) error {
	chunks, err := ps.ListChunks(context.Background())
	if err != nil {
		return err
	}
	vectors := make(map[string][]float32)
	for i := range chunks {
		if len(chunks[i].Embedding) > 0 {
			vectors[chunks[i].ID] = chunks[i].Embedding
		}
	}
	idx.Warm(vectors)
	logger.Debug("Vector index warmed with %d embeddings", len(vectors))
	return nil
}

func buildEmbedding() (driven.EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
		})
	case "ollama":
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
		}), nil
	case "":
		// Sparse-only operation; dense retrieval degrades gracefully.
		logger.Warn("No embedding provider configured; dense retrieval disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildEntities() (driven.EntityService, error) {
	if cfg.NER.BaseURL == "" {
		return nil, nil
	}
	return httpner.NewEntityService(httpner.Config{BaseURL: cfg.NER.BaseURL})
}

func buildRerank() (driven.RerankService, error) {
	if cfg.Rerank.BaseURL == "" {
		return nil, nil
	}
	return crossencoder.NewRerankService(crossencoder.Config{BaseURL: cfg.Rerank.BaseURL})
}

func buildLLM() (driven.LLMService, error) {
	if cfg.LLM.APIKey == "" {
		return nil, nil
	}
	return openaillm.NewLLMService(openaillm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
}
