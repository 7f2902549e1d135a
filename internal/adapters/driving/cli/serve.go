package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/campusrag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/campusrag/internal/adapters/driving/api"
	"github.com/custodia-labs/campusrag/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the JSON API server exposing query and ingest endpoints.
The server shuts down gracefully on SIGINT or SIGTERM. While it runs,
edits to the config file update the retrieval tunables in place.

Endpoints:
  GET  /healthz     liveness check
  POST /v1/query    answer a question from the index
  POST /v1/ingest   index a batch of page URLs`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	addr := serveAddr
	if addr == "" && cfg != nil {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = ":8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchConfig(ctx)

	server := api.NewServer(queryService, ingestService, addr)
	return server.Run(ctx)
}

// watchConfig reloads the config file on change for as long as the
// server runs, pushing the retrieval tunables into the query service.
// Watching is best-effort: a failure is logged, not fatal.
func watchConfig(ctx context.Context) {
	if cfgPath == "" || queryCore == nil {
		return
	}
	watcher, err := file.NewWatcher(cfgPath)
	if err != nil {
		logger.Warn("Config watch disabled: %v", err)
		return
	}
	watcher.OnReload = func(c *file.Config) {
		queryCore.UpdateSettings(c.RetrievalSettings())
	}
	go func() {
		if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Config watch stopped: %v", err)
		}
	}()
}
