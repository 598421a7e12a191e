package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Ning0612/Diskgraph/internal/daemon"
	"github.com/Ning0612/Diskgraph/internal/logger"
	"github.com/Ning0612/Diskgraph/internal/scheduler"
	"github.com/Ning0612/Diskgraph/internal/state"
	"github.com/Ning0612/Diskgraph/internal/web"
)

// DaemonService runs the HTTP API and the optional periodic reload
type DaemonService struct {
	mu        sync.RWMutex
	graphs    *GraphService
	addr      string
	interval  time.Duration
	pidFile   *daemon.PIDFile
	server    *http.Server
	listener  net.Listener
	scheduler scheduler.Scheduler
	serveErr  chan error
}

// DaemonOptions configures a DaemonService
type DaemonOptions struct {
	// Addr is the listen address; port 0 picks a free port
	Addr string

	// RefreshInterval reloads the graph periodically; 0 disables it
	RefreshInterval time.Duration

	// PIDFile is written on Start and removed on Stop; empty disables it
	PIDFile string
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool              `json:"running"`
	Addr           string            `json:"addr,omitempty"`
	CacheBusy      bool              `json:"cache_busy"`
	SchedulerStats *scheduler.Status `json:"scheduler,omitempty"`
	LastScan       *state.ScanRecord `json:"last_scan,omitempty"`
}

// NewDaemonService creates a daemon serving graphs
func NewDaemonService(graphs *GraphService, opts DaemonOptions) (*DaemonService, error) {
	if graphs == nil {
		return nil, fmt.Errorf("graph service cannot be nil")
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("listen address cannot be empty")
	}
	if opts.RefreshInterval < 0 {
		return nil, fmt.Errorf("refresh interval cannot be negative")
	}

	d := &DaemonService{
		graphs:   graphs,
		addr:     opts.Addr,
		interval: opts.RefreshInterval,
	}
	if opts.PIDFile != "" {
		d.pidFile = daemon.NewPIDFile(opts.PIDFile)
	}
	return d, nil
}

// Start listens and serves in the background. The graph is warmed up
// asynchronously so the listener is available immediately.
func (d *DaemonService) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server != nil {
		return fmt.Errorf("daemon is already running")
	}

	if d.pidFile != nil {
		if err := d.pidFile.Write(); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		d.removePIDFile()
		return fmt.Errorf("failed to listen on %s: %w", d.addr, err)
	}

	if d.interval > 0 {
		sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
			Name:     "reload",
			Interval: d.interval,
		}, scheduler.RunnerFunc(func(ctx context.Context) error {
			_, err := d.graphs.Reload(ctx)
			return err
		}))
		if err != nil {
			ln.Close()
			d.removePIDFile()
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			ln.Close()
			d.removePIDFile()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		d.scheduler = sched
	}

	api := web.NewServer(d.graphs)
	api.SetStatusFunc(func() any { return d.Status() })

	d.listener = ln
	d.server = &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	d.serveErr = make(chan error, 1)

	go func(server *http.Server, errc chan<- error) {
		err := server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
		close(errc)
	}(d.server, d.serveErr)

	go func() {
		if _, err := d.graphs.Get(ctx); err != nil {
			logger.Get().Error("initial graph load failed", "error", err)
		}
	}()

	logger.Get().Info("serving",
		"addr", ln.Addr().String(),
		"roots", d.graphs.Roots(),
		"refresh_interval", d.interval,
	)
	return nil
}

// Addr returns the bound listen address, or "" when not running
func (d *DaemonService) Addr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Done is closed after the HTTP server exits; it yields the serve error if any
func (d *DaemonService) Done() <-chan error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.serveErr
}

// Stop shuts the server down gracefully, waiting for in-flight requests
// until ctx is done
func (d *DaemonService) Stop(ctx context.Context) error {
	// detach under the lock, shut down outside it: in-flight health
	// requests read Status
	d.mu.Lock()
	server, sched := d.server, d.scheduler
	d.server, d.listener, d.scheduler = nil, nil, nil
	d.mu.Unlock()

	if server == nil {
		return fmt.Errorf("daemon is not running")
	}

	var lastErr error
	if sched != nil {
		if err := sched.Stop(); err != nil {
			// already stopped by context cancellation
			logger.Get().Debug("scheduler stop", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		lastErr = fmt.Errorf("failed to shut down server: %w", err)
	}

	d.removePIDFile()
	return lastErr
}

// Status returns the current daemon status
func (d *DaemonService) Status() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &DaemonStatus{
		Running:   d.server != nil,
		CacheBusy: d.graphs.CacheBusy(),
		LastScan:  d.graphs.LastScan(),
	}
	if d.listener != nil {
		status.Addr = d.listener.Addr().String()
	}
	if d.scheduler != nil {
		status.SchedulerStats = d.scheduler.Status()
	}
	return status
}

func (d *DaemonService) removePIDFile() {
	if d.pidFile == nil {
		return
	}
	if err := d.pidFile.Remove(); err != nil {
		logger.Get().Warn("failed to remove PID file", "error", err)
	}
}
