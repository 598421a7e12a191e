package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Ning0612/Diskgraph/internal/progress"
	"github.com/Ning0612/Diskgraph/internal/service"
)

const progressRedraw = 200 * time.Millisecond

// progressLine redraws a single status line as directories finish
type progressLine struct {
	mu    sync.Mutex
	w     io.Writer
	every time.Duration
	last  time.Time
	width int
}

func newProgressLine(w io.Writer, every time.Duration) *progressLine {
	return &progressLine{w: w, every: every}
}

func (p *progressLine) update(u progress.Update) {
	if u.Type != progress.UpdateDirectoryDone {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.width > 0 && now.Sub(p.last) < p.every {
		return
	}
	p.last = now

	line := fmt.Sprintf("%s entries, %s, %s",
		humanize.Comma(int64(u.EntriesSeen)),
		humanize.IBytes(uint64(u.BytesSeen)),
		truncate(u.CurrentPath, 60),
	)
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
	p.width = len(line)
}

// finish ends the status line so later output starts on a fresh line
func (p *progressLine) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

// attachProgress shows scan progress on stderr when --progress is set.
// The returned func must be called once the scan has returned.
func attachProgress(cmd *cobra.Command, graphs *service.GraphService) func() {
	if !showProgress {
		return func() {}
	}
	line := newProgressLine(cmd.ErrOrStderr(), progressRedraw)
	graphs.SetProgressReporter(progress.NewCallbackReporter(line.update))
	return line.finish
}
