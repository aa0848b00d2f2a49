package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/runner"
)

// newCrawlCmd creates the 'crawl' subcommand, which harvests the configured
// page range and publishes every resolved resource id.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Harvests a page range and publishes resource ids",
		Long: `Visits pages first-page through last-page of the configured thread.
Cached listings and bodies are reused; everything else is fetched, cached and
then scanned for resource references to publish.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := appInstance.Config().Archive
	result, err := appInstance.Runner().Run(ctx, runner.Plan{
		Collection: cfg.Collection,
		Thread:     cfg.Thread,
		FirstPage:  cfg.FirstPage,
		LastPage:   cfg.LastPage,
	})
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	appInstance.Logger().Info("crawl command finished",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)),
	)
	if result.Status != runner.StatusSucceeded {
		return fmt.Errorf("crawl %s: %s", result.Status, result.Error)
	}
	return nil
}
