package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

var (
	queryLimit int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from the indexed pages",
	Long: `Answers a free-text question using hybrid retrieval over the
indexed pages. The answer cites the pages it drew from and lists any
supporting images.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "maximum number of context chunks")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer context as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	question := args[0]
	opts := domain.QueryOptions{Limit: queryLimit}

	answer, err := queryService.Query(context.Background(), question, opts)
	if errors.Is(err, domain.ErrInsufficientContext) {
		cmd.Println("No indexed page contains an answer to this question.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputAnswerJSON(cmd, answer)
	}
	return outputAnswerText(cmd, answer)
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.AnswerContext) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, answer *domain.AnswerContext) error {
	cmd.Println(answer.Answer)

	if len(answer.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i := range answer.Sources {
			src := answer.Sources[i]
			if len(src.SectionPath) > 0 {
				cmd.Printf("  [%d] %s (%s)\n", i+1, src.URL, strings.Join(src.SectionPath, " > "))
			} else {
				cmd.Printf("  [%d] %s\n", i+1, src.URL)
			}
		}
	}

	if len(answer.Images) > 0 {
		cmd.Println()
		cmd.Println("Images:")
		for i := range answer.Images {
			cmd.Printf("  %s\n", answer.Images[i].URL)
		}
	}

	return nil
}
