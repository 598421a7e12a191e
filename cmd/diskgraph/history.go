package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historySource string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scans and cache loads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("-n must be positive")
		}

		graphs, err := openGraphs()
		if err != nil {
			return err
		}
		defer graphs.Close()

		records, err := graphs.History(historyLimit, historySource)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no history")
			return nil
		}
		return printHistory(cmd.OutOrStdout(), records)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of records to show")
	historyCmd.Flags().StringVar(&historySource, "source", "", "Only show records of this source: scan or cache")
	rootCmd.AddCommand(historyCmd)
}
