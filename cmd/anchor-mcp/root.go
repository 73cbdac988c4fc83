package main

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/ar-anchor-mcp/internal/app"
	"github.com/ironsheep/ar-anchor-mcp/internal/config"
	"github.com/ironsheep/ar-anchor-mcp/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFile    string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   "anchor-mcp",
		Short: "Vision-guided AR object anchoring",
		Long: `anchor-mcp finds a target container in camera frames, ray casts its
center into the scene reconstruction, and places one anchor carrying a
virtual asset scaled to the container's footprint.

It runs as an MCP server over stdio, or one-shot against a scene file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides ANCHOR_MCP_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "also write logs to this rotating file")

	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newPlaceCmd(&flags))
	cmd.AddCommand(newDetectCmd(&flags))

	return cmd
}

// setup loads configuration and builds the shared components.
func setup(flags *globalFlags, target string) (*app.Components, *logrus.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.Log.File = flags.logFile
	}
	if target != "" {
		cfg.Target = target
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, nil, err
	}
	c, err := app.Build(cfg, nil, logrus.NewEntry(logger))
	if err != nil {
		logger.WithError(err).Error("Configuration error")
		return nil, nil, err
	}
	return c, logger, nil
}
