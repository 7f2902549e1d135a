package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/campusrag/internal/crawler"
)

var (
	crawlMaxPages int
	crawlRPS      float64
	crawlInclude  []string
	crawlExclude  []string
	crawlDryRun   bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [base-url]",
	Short: "Discover and index a site's pages",
	Long: `Discovers the pages of a site, preferring its sitemap and falling
back to following links, then runs the full indexing pipeline over
every admitted URL. With --dry-run the discovered URLs are printed
without being indexed.

The base URL defaults to site.base_url from the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "maximum pages to discover (default 500)")
	crawlCmd.Flags().Float64Var(&crawlRPS, "rps", 0, "crawl requests per second (default 2)")
	crawlCmd.Flags().StringSliceVar(&crawlInclude, "include", nil, "URL path patterns to include")
	crawlCmd.Flags().StringSliceVar(&crawlExclude, "exclude", nil, "URL path patterns to exclude")
	crawlCmd.Flags().BoolVar(&crawlDryRun, "dry-run", false, "print discovered URLs without indexing")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	if webFetcher == nil {
		return errors.New("fetcher not configured")
	}

	baseURL := ""
	if len(args) > 0 {
		baseURL = args[0]
	} else if cfg != nil {
		baseURL = cfg.Site.BaseURL
	}
	if baseURL == "" {
		return errors.New("no base URL given and site.base_url is not configured")
	}

	include, exclude := crawlInclude, crawlExclude
	maxPages, rps := crawlMaxPages, crawlRPS
	if cfg != nil {
		include = append(append([]string{}, cfg.Site.Include...), include...)
		exclude = append(append([]string{}, cfg.Site.Exclude...), exclude...)
		if maxPages == 0 {
			maxPages = cfg.Site.MaxPages
		}
		if rps == 0 {
			rps = cfg.Site.RPS
		}
	}

	rules, err := crawler.NewRules(baseURL, include, exclude)
	if err != nil {
		return fmt.Errorf("building crawl rules: %w", err)
	}

	var opts []crawler.Option
	if maxPages > 0 {
		opts = append(opts, crawler.WithMaxPages(maxPages))
	}
	if rps > 0 {
		opts = append(opts, crawler.WithRateLimit(rps))
	}

	ctx := context.Background()
	c := crawler.New(webFetcher, opts...)

	cmd.Printf("Discovering pages from %s...\n", baseURL)
	urls, err := c.Discover(ctx, baseURL, rules)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	cmd.Printf("Discovered %d pages.\n", len(urls))

	if crawlDryRun {
		for _, u := range urls {
			cmd.Println(u)
		}
		return nil
	}

	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	report, err := ingestService.Ingest(ctx, urls)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printIngestReport(cmd, report)
	return nil
}
