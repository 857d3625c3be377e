// Package cmd defines and implements the CLI commands for the pagefinder
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/api"
	"github.com/loxal/page-finder-service/internal/app"
	"github.com/loxal/page-finder-service/internal/config"
	"github.com/loxal/page-finder-service/internal/crawl"
	"github.com/loxal/page-finder-service/internal/page"
	"github.com/loxal/page-finder-service/internal/site"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface the commands depend on. A narrow interface
// here lets tests inject a mock container.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Sites() *site.Store
	Pages() *page.Repo
	Scheduler() *crawl.Scheduler
	Server() *api.Server
}

// newApp is the application factory, a variable so tests can swap in a mock.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	return wrapApp(ctx, cfgFile)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagefinder",
		Short: "A multi-tenant website crawl and search index service.",
		Long: `pagefinder crawls registered websites, extracts their page content,
and maintains a per-tenant full-text search index. It serves an HTTP API
for tenant management, on-demand crawls, and search.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables apply otherwise)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

func wrapApp(ctx context.Context, cfgFile string) (App, error) {
	a, err := app.New(ctx, cfgFile)
	if err != nil {
		return nil, err
	}
	return a, nil
}
