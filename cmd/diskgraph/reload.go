package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	showProgress bool
	forceUnlock  bool
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Discard the cache file and rebuild the graph from a live scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		graphs, err := openGraphs()
		if err != nil {
			return err
		}
		defer graphs.Close()

		if forceUnlock {
			if err := graphs.ForceUnlock(); err != nil {
				return err
			}
		} else if graphs.CacheBusy() {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: cache file is locked by another process; the new graph may not be saved")
		}

		finish := attachProgress(cmd, graphs)
		start := time.Now()
		g, err := graphs.Reload(cmd.Context())
		finish()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cache:       %s\n", graphs.CachePath())
		printStats(out, g.Stats(), time.Since(start))
		return nil
	},
}

func init() {
	reloadCmd.Flags().BoolVar(&showProgress, "progress", false, "Show scan progress on stderr")
	reloadCmd.Flags().BoolVar(&forceUnlock, "force-unlock", false, "Remove a cache lock left behind by a crashed process first")
	rootCmd.AddCommand(reloadCmd)
}
