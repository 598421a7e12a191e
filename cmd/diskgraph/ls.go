package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Diskgraph/internal/aggregate"
)

var lsSort string

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory, or the scan roots, with subtree sizes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sortRows func([]aggregate.Row)
		switch lsSort {
		case "size":
			sortRows = aggregate.SortBySize
		case "name":
			sortRows = aggregate.SortByName
		default:
			return fmt.Errorf("invalid --sort %q: must be size or name", lsSort)
		}

		graphs, err := openGraphs()
		if err != nil {
			return err
		}
		defer graphs.Close()

		g, err := graphs.Get(cmd.Context())
		if err != nil {
			return err
		}
		memo, err := aggregate.NewMemo(g, aggregate.DefaultMemoSize)
		if err != nil {
			return err
		}

		var listing *aggregate.Listing
		if len(args) == 0 {
			listing = memo.ListRoots()
		} else {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("invalid path %s: %w", args[0], err)
			}
			if listing, err = memo.List(path); err != nil {
				return err
			}
		}

		sortRows(listing.Rows)
		return printListing(cmd.OutOrStdout(), listing)
	},
}

func init() {
	lsCmd.Flags().StringVar(&lsSort, "sort", "size", "Sort order: size or name")
	rootCmd.AddCommand(lsCmd)
}
