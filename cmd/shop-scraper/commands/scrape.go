package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/maltedev/shop-scraper/internal/config"
	"github.com/maltedev/shop-scraper/internal/models"
	"github.com/spf13/cobra"
)

var (
	scrapeURL   *string
	scrapePages *int
)

func init() {
	scrapeURL = scrapeCmd.Flags().String("url", "", "Base URL of the paginated listing.")
	scrapePages = scrapeCmd.Flags().Int("pages", 1, "Number of pages to scrape.")
	scrapeCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape --url <base url> [--pages <n>]",
	Short: "Runs a single scrape and prints its summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// stdout carries the summary, logs go to stderr
		logger := newLogger(cfg.Logging, os.Stderr)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.service.Scrape(cmd.Context(), models.ScrapeRequest{
			Pages: *scrapePages,
			URL:   *scrapeURL,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}
