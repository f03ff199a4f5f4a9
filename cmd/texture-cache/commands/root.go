// Package commands implements the CLI commands for the texture cache.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/app"
	"github.com/vertextoedge/texture-cache/internal/config"
	"github.com/vertextoedge/texture-cache/internal/logger"
)

// CLI represents the command line interface
type CLI struct {
	rootCmd *cobra.Command
	version string

	configPath string
	logLevel   string
}

// New creates a new CLI instance
func New(version string) *CLI {
	c := &CLI{version: version}

	rootCmd := &cobra.Command{
		Use:           "texture-cache",
		Short:         "Local cache of ambientCG texture assets",
		Long:          "texture-cache downloads ambientCG texture archives, extracts them into a local cache and serves them to the host application.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newFetchCmd())
	rootCmd.AddCommand(c.newSearchCmd())
	rootCmd.AddCommand(c.newHistoryCmd())
	rootCmd.AddCommand(c.newCleanCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error writers for the root command
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// open loads the configuration, initializes logging and builds the application
func (c *CLI) open() (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zapLogger := logger.GetZapLogger()
	a, err := app.New(cfg, zapLogger)
	if err != nil {
		return nil, err
	}

	zapLogger.Debug("configuration loaded",
		zap.String("config", c.configPath),
		zap.String("cache_dir", cfg.Cache.RootDir),
		zap.String("database", cfg.GetDatabasePath()),
	)
	return a, nil
}

// close releases the application and flushes the logger
func (c *CLI) close(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.Error("failed to close application", zap.Error(err))
	}
	_ = logger.Sync()
}
