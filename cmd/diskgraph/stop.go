package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Diskgraph/internal/daemon"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running serve process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.PIDFile == "" {
			return fmt.Errorf("server.pid_file is not set")
		}
		pidFile := daemon.NewPIDFile(cfg.Server.PIDFile)

		pid, err := pidFile.Read()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), stopTimeout)
		defer cancel()
		if err := pidFile.Terminate(ctx); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "stopped diskgraph serve (PID %d)\n", pid)
		return nil
	},
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "How long to wait for the process to exit")
	rootCmd.AddCommand(stopCmd)
}
