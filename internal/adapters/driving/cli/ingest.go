package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [url...]",
	Short: "Index specific pages",
	Long: `Runs the indexing pipeline over the given page URLs: fetch,
normalise, segment, associate images, deduplicate and persist.
Failures are isolated per page; one broken page never aborts the
batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	cmd.Printf("Ingesting %d pages...\n", len(args))

	report, err := ingestService.Ingest(context.Background(), args)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	printIngestReport(cmd, report)
	return nil
}

func printIngestReport(cmd *cobra.Command, report *domain.IngestReport) {
	cmd.Printf("Ingested %d pages (%d chunks, %d images).\n",
		report.PagesIngested, report.Chunks, report.Images)
	if report.DuplicatesExcluded > 0 {
		cmd.Printf("Excluded %d near-duplicate pages.\n", report.DuplicatesExcluded)
	}
	if report.PagesEmpty > 0 {
		cmd.Printf("Skipped %d empty pages.\n", report.PagesEmpty)
	}
	if report.PagesFailed > 0 {
		cmd.Printf("Failed to process %d pages.\n", report.PagesFailed)
	}
}
