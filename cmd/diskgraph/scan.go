package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Diskgraph/internal/aggregate"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the roots and print statistics without touching the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		graphs, err := openGraphs()
		if err != nil {
			return err
		}
		defer graphs.Close()

		finish := attachProgress(cmd, graphs)
		start := time.Now()
		g, err := graphs.Scan(cmd.Context())
		finish()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printStats(out, g.Stats(), time.Since(start))
		fmt.Fprintln(out)

		listing := aggregate.ListRoots(g)
		aggregate.SortBySize(listing.Rows)
		return printListing(out, listing)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&showProgress, "progress", false, "Show scan progress on stderr")
	rootCmd.AddCommand(scanCmd)
}
