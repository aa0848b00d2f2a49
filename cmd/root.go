// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/app"
	"github.com/JakeFAU/archive-harvester/internal/config"
	"github.com/JakeFAU/archive-harvester/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can inject
// fakes for the fetcher and sink.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// flagKeys maps persistent flags onto their configuration keys.
var flagKeys = map[string]string{
	"collection": "archive.collection",
	"thread":     "archive.thread",
	"first-page": "archive.first_page",
	"last-page":  "archive.last_page",
}

// newRootCmd creates and configures the root command. The returned release
// func closes the services built for the invoked subcommand, whether or not it
// succeeded.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile     string
		appInstance *app.App
		closeLog    = func() {}
	)
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Incrementally harvests an archived discussion thread.",
		Long: `harvester walks the pages of an archived discussion thread, caches the
page listings and raw message bodies it has already seen, and publishes the
media resource ids referenced in each message.`,
		SilenceUsage: true,

		// Config and services are built once the subcommand's flags are parsed.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts := make([]config.Option, 0, len(flagKeys))
			for name, key := range flagKeys {
				if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
					opts = append(opts, config.WithFlag(key, f))
				}
			}
			cfg, err := config.Load(cfgFile, opts...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closeLogger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			closeLog = closeLogger
			appInstance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("collection", "", "collection (group) id")
	flags.String("thread", "", "thread (topic) id")
	flags.Int("first-page", 1, "first page to harvest")
	flags.Int("last-page", 32, "last page to harvest")

	cmd.AddCommand(newCrawlCmd(), newMessagesCmd(), newServeCmd())
	release := func() {
		if appInstance != nil {
			_ = appInstance.Close()
			appInstance = nil
		}
		closeLog()
		closeLog = func() {}
	}
	return cmd, release
}

// Execute is the main entry point.
func Execute() {
	root, release := newRootCmd()
	err := root.ExecuteContext(context.Background())
	release()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
