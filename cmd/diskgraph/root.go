package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Diskgraph/internal/config"
	"github.com/Ning0612/Diskgraph/internal/logger"
	"github.com/Ning0612/Diskgraph/internal/service"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "diskgraph",
	Short:        "Scan filesystems into a cached graph and browse directory sizes",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if logFormat != "" {
			loaded.Log.Format = logFormat
		}
		if err := logger.Init(loaded.LoggerConfig()); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: search ., ./configs, $XDG_CONFIG_HOME/diskgraph)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}

// Execute runs the root command; SIGINT and SIGTERM cancel the command context
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Shutdown()
	if err != nil {
		os.Exit(1)
	}
}

// openGraphs builds the graph service from the loaded config
func openGraphs() (*service.GraphService, error) {
	return service.NewGraphService(cfg)
}
