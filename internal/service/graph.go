// Package service wires configuration to the scanner, cache and history.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Ning0612/Diskgraph/internal/cache"
	"github.com/Ning0612/Diskgraph/internal/config"
	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/logger"
	"github.com/Ning0612/Diskgraph/internal/metrics"
	"github.com/Ning0612/Diskgraph/internal/progress"
	"github.com/Ning0612/Diskgraph/internal/scanner"
	"github.com/Ning0612/Diskgraph/internal/state"
)

// GraphService owns the components behind every command
type GraphService struct {
	config   *config.Config
	scanner  *scanner.Scanner
	cache    *cache.GraphCache
	stateMgr *state.Manager
	ticker   *progress.TickerReporter
}

// NewGraphService creates a graph service scanning the real filesystem
func NewGraphService(cfg *config.Config) (*GraphService, error) {
	return NewGraphServiceWithFs(cfg, afero.NewOsFs())
}

// NewGraphServiceWithFs creates a graph service scanning fs
func NewGraphServiceWithFs(cfg *config.Config, fs afero.Fs) (*GraphService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	roots := cfg.Scan.Roots
	if len(roots) == 0 {
		roots = scanner.DefaultRoots()
	}
	scan, err := scanner.New(fs, roots)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	s := &GraphService{config: cfg, scanner: scan}

	if cfg.Scan.ProgressInterval > 0 {
		s.ticker = progress.NewTickerReporter(cfg.Scan.ProgressInterval)
		scan.SetProgressReporter(s.ticker)
	}

	opts := cache.Options{
		Path:             cfg.Cache.Path,
		CompressionLevel: cfg.Cache.CompressionLevel,
		Roots:            scan.Roots(),
		LockStaleTimeout: cfg.Cache.LockStaleTimeout,
	}
	if cfg.State.Enabled {
		s.stateMgr, err = state.NewManager(cfg.State.Dir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create state manager: %w", err)
		}
		opts.Recorder = s.stateMgr
	}

	s.cache, err = cache.New(scan, opts)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return s, nil
}

// Roots returns the scanned roots
func (s *GraphService) Roots() []string {
	return s.scanner.Roots()
}

// CachePath returns the cache file location
func (s *GraphService) CachePath() string {
	return s.cache.Path()
}

// CacheBusy reports whether another process is writing the cache file
func (s *GraphService) CacheBusy() bool {
	return s.cache.Busy()
}

// ForceUnlock removes a cache lock left behind by a crashed process
func (s *GraphService) ForceUnlock() error {
	return s.cache.ForceUnlock()
}

// SetProgressReporter adds reporter to the scanner's progress sinks, next to
// the periodic progress log when that is enabled
func (s *GraphService) SetProgressReporter(reporter progress.Reporter) {
	if s.ticker != nil {
		reporter = progress.Multi{s.ticker, reporter}
	}
	s.scanner.SetProgressReporter(reporter)
}

// Get returns the held graph, loading or scanning on first use
func (s *GraphService) Get(ctx context.Context) (*domain.PathGraph, error) {
	return s.cache.Get(ctx)
}

// Reload rebuilds the graph from a live scan
func (s *GraphService) Reload(ctx context.Context) (*domain.PathGraph, error) {
	return s.cache.Reload(ctx)
}

// Scan walks the roots without reading or writing the cache file
func (s *GraphService) Scan(ctx context.Context) (*domain.PathGraph, error) {
	scanID := uuid.NewString()
	log := logger.With("scan_id", scanID)
	start := time.Now()

	record := state.ScanRecord{
		ScanID:    scanID,
		Source:    state.SourceScan,
		StartTime: start,
	}

	g, err := s.scanner.Scan(ctx)
	record.EndTime = time.Now()
	if err != nil {
		metrics.RecordScan(record.Duration(), 0, false)
		record.Status = state.StatusFailed
		record.Error = err.Error()
		s.record(record)
		log.Error("scan failed", "error", err)
		return nil, err
	}

	stats := g.Stats()
	record.Status = state.StatusSuccess
	record.Entries = stats.Entries
	record.Unreadable = stats.UnreadableFiles + stats.UnreadableDirectories
	record.TotalBytes = stats.TotalBytes
	metrics.RecordScan(record.Duration(), record.Unreadable, true)
	s.record(record)

	log.Info("scan finished", "entries", stats.Entries, "duration", record.Duration().Round(time.Millisecond))
	return g, nil
}

// History returns the most recent scan records, newest first.
// A non-empty source keeps only records of that source.
func (s *GraphService) History(limit int, source string) ([]state.ScanRecord, error) {
	if s.stateMgr == nil {
		return nil, fmt.Errorf("scan history is disabled (state.enabled=false)")
	}
	switch source {
	case "":
		return s.stateMgr.GetHistory(limit)
	case state.SourceScan, state.SourceCache:
		return s.stateMgr.GetHistoryBySource(source, limit)
	default:
		return nil, fmt.Errorf("unknown history source %q (want %s or %s)", source, state.SourceScan, state.SourceCache)
	}
}

// LastScan returns the last successful live scan, or nil
func (s *GraphService) LastScan() *state.ScanRecord {
	if s.stateMgr == nil {
		return nil
	}
	record, err := s.stateMgr.GetLastSuccess(state.SourceScan)
	if err != nil {
		return nil
	}
	return record
}

func (s *GraphService) record(r state.ScanRecord) {
	if s.stateMgr == nil {
		return
	}
	if err := s.stateMgr.SaveScan(r); err != nil {
		logger.Get().Warn("failed to record scan history", "scan_id", r.ScanID, "error", err)
	}
}

// Close releases all resources
func (s *GraphService) Close() error {
	var lastErr error

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			lastErr = err
		}
	}

	if s.ticker != nil {
		if err := s.ticker.Close(); err != nil {
			lastErr = err
		}
	}

	if s.stateMgr != nil {
		if err := s.stateMgr.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
