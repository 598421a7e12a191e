package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Diskgraph/internal/logger"
	"github.com/Ning0612/Diskgraph/internal/service"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr    string
	serveRefresh time.Duration
	servePIDFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the graph over HTTP",
	Long: `Serve the graph as a JSON API:

  GET  /health
  GET  /api/v1/list[?path=/abs/dir]
  POST /api/v1/cache/reload
  GET  /metrics

With a refresh interval the graph is rebuilt periodically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := service.DaemonOptions{
			Addr:            cfg.Server.Addr,
			RefreshInterval: cfg.Cache.RefreshInterval,
			PIDFile:         cfg.Server.PIDFile,
		}
		if cmd.Flags().Changed("addr") {
			opts.Addr = serveAddr
		}
		if cmd.Flags().Changed("refresh") {
			opts.RefreshInterval = serveRefresh
		}
		if cmd.Flags().Changed("pid-file") {
			opts.PIDFile = servePIDFile
		}

		graphs, err := openGraphs()
		if err != nil {
			return err
		}
		defer graphs.Close()

		d, err := service.NewDaemonService(graphs, opts)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := d.Start(ctx); err != nil {
			return err
		}

		var serveErr error
		select {
		case <-ctx.Done():
			logger.Get().Info("shutting down")
		case serveErr = <-d.Done():
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.Stop(stopCtx); err != nil && serveErr == nil {
			serveErr = err
		}
		return serveErr
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", 0, "Periodic reload interval, 0 disables (default from cache.refresh_interval)")
	serveCmd.Flags().StringVar(&servePIDFile, "pid-file", "", "PID file path, empty disables (default from server.pid_file)")
	rootCmd.AddCommand(serveCmd)
}
