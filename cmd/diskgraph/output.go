package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/Diskgraph/internal/aggregate"
	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/state"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func printListing(w io.Writer, l *aggregate.Listing) error {
	if l.IsRoots() {
		fmt.Fprintln(w, "roots")
	} else {
		fmt.Fprintln(w, l.Path)
		if l.Parent != "" {
			fmt.Fprintf(w, "parent: %s\n", l.Parent)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSIZE\t%\tMODIFIED\tNAME")
	for _, row := range l.Rows {
		name := row.Record.Name
		if row.Record.IsDir() {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\n",
			row.Record.Kind.Code(),
			humanize.IBytes(uint64(row.TotalSize)),
			row.Percent,
			formatTime(row.Record.ModTime()),
			name,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "total %s in %d entries\n", humanize.IBytes(uint64(l.Total)), len(l.Rows))
	return nil
}

func printStats(w io.Writer, s domain.GraphStats, duration time.Duration) {
	fmt.Fprintf(w, "entries:     %s\n", humanize.Comma(int64(s.Entries)))
	fmt.Fprintf(w, "files:       %s\n", humanize.Comma(int64(s.Files)))
	fmt.Fprintf(w, "directories: %s\n", humanize.Comma(int64(s.Directories)))
	fmt.Fprintf(w, "symlinks:    %s\n", humanize.Comma(int64(s.Symlinks)))
	fmt.Fprintf(w, "unreadable:  %s\n", humanize.Comma(int64(s.UnreadableFiles+s.UnreadableDirectories)))
	fmt.Fprintf(w, "total size:  %s\n", humanize.IBytes(uint64(s.TotalBytes)))
	fmt.Fprintf(w, "duration:    %s\n", duration.Round(time.Millisecond))
}

func printHistory(w io.Writer, records []state.ScanRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSOURCE\tSTATUS\tENTRIES\tUNREADABLE\tSIZE\tDURATION\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			formatTime(r.StartTime),
			r.Source,
			r.Status,
			r.Entries,
			r.Unreadable,
			humanize.IBytes(uint64(r.TotalBytes)),
			r.Duration().Round(time.Millisecond),
			truncate(r.Error, 60),
		)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
