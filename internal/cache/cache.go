// Package cache holds the process-wide path graph and persists it as a
// gzip-compressed cache file.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"

	"github.com/Ning0612/Diskgraph/internal/codec"
	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/lock"
	"github.com/Ning0612/Diskgraph/internal/logger"
	"github.com/Ning0612/Diskgraph/internal/metrics"
	"github.com/Ning0612/Diskgraph/internal/state"
)

// DefaultCompressionLevel is a moderate gzip level
const DefaultCompressionLevel = 5

// ErrCacheClosed is returned after Close
var ErrCacheClosed = fmt.Errorf("%w: cache closed", domain.ErrNoGraph)

// Scanner produces a complete graph
type Scanner interface {
	Scan(ctx context.Context) (*domain.PathGraph, error)
}

// Recorder stores the history of graph builds
type Recorder interface {
	SaveScan(record state.ScanRecord) error
}

// Options configures a GraphCache
type Options struct {
	// Path is the cache file location
	Path string

	// CompressionLevel is a gzip level; 0 selects DefaultCompressionLevel
	CompressionLevel int

	// Recorder is optional
	Recorder Recorder

	// Roots, when set, must match the roots of a decoded cache file;
	// a file built from other roots is treated as a miss
	Roots []string

	// LockStaleTimeout overrides lock.DefaultStaleTimeout when positive
	LockStaleTimeout time.Duration
}

// GraphCache owns the single held graph. Readers get a snapshot pointer;
// rebuilds publish a complete new graph with one atomic store.
type GraphCache struct {
	scanner  Scanner
	path     string
	level    int
	lock     *lock.FileLock
	recorder Recorder
	roots    []string

	// ctx bounds every build; Close cancels it
	ctx    context.Context
	cancel context.CancelFunc

	current atomic.Pointer[domain.PathGraph]
	group   singleflight.Group
	// buildMu serializes cold starts against reloads
	buildMu sync.Mutex
}

// New creates a cache backed by the file at opts.Path
func New(scanner Scanner, opts Options) (*GraphCache, error) {
	if scanner == nil {
		return nil, fmt.Errorf("scanner cannot be nil")
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("cache path cannot be empty")
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = DefaultCompressionLevel
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache path: %w", err)
	}

	fileLock, err := lock.NewFileLock(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if opts.LockStaleTimeout > 0 {
		fileLock.SetStaleTimeout(opts.LockStaleTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GraphCache{
		scanner:  scanner,
		path:     path,
		level:    level,
		lock:     fileLock,
		recorder: opts.Recorder,
		roots:    append([]string(nil), opts.Roots...),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Close cancels any running build and waits for it to finish.
// Later Get and Reload calls fail with ErrCacheClosed.
func (c *GraphCache) Close() error {
	c.cancel()
	c.buildMu.Lock()
	c.buildMu.Unlock()
	return nil
}

// Busy reports whether a live process holds the cache file lock
func (c *GraphCache) Busy() bool {
	return c.lock.IsLocked()
}

// ForceUnlock removes the cache file lock whoever holds it. Only for locks
// left behind by a crashed process on another host.
func (c *GraphCache) ForceUnlock() error {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	if holder, err := c.lock.GetHolder(); err == nil {
		logger.Get().Warn("removing cache lock", "pid", holder.PID, "host", holder.Hostname, "operation", holder.Operation)
	}
	return c.lock.ForceRelease()
}

// Path returns the cache file location
func (c *GraphCache) Path() string {
	return c.path
}

// Current returns the held graph without loading one; nil if none is held
func (c *GraphCache) Current() *domain.PathGraph {
	return c.current.Load()
}

// Get returns the held graph. On a cold start it decodes the cache file and,
// if that is missing, unusable or built from other roots, scans and persists a
// new graph. Concurrent cold starts share one build; a caller that gives up
// stops waiting but does not cancel the build for the others.
func (c *GraphCache) Get(ctx context.Context) (*domain.PathGraph, error) {
	if g := c.current.Load(); g != nil {
		return g, nil
	}

	return c.shared(ctx, "graph", func(ctx context.Context) (*domain.PathGraph, error) {
		c.buildMu.Lock()
		defer c.buildMu.Unlock()

		// a reload may have published while we waited
		if g := c.current.Load(); g != nil {
			return g, nil
		}

		g := c.load()
		if g == nil {
			var err error
			if g, err = c.rebuild(ctx); err != nil {
				return nil, err
			}
		}
		c.publish(g)
		return g, nil
	})
}

// Reload deletes the cache file and publishes a fresh scan. The previous graph
// stays visible until the new one is ready; if the scan fails the held graph
// is dropped and the error returned. Once started, a reload runs to completion
// even if ctx is cancelled.
func (c *GraphCache) Reload(ctx context.Context) (*domain.PathGraph, error) {
	metrics.RecordReload()

	return c.shared(ctx, "reload", func(ctx context.Context) (*domain.PathGraph, error) {
		c.buildMu.Lock()
		defer c.buildMu.Unlock()

		c.remove()

		g, err := c.rebuild(ctx)
		if err != nil {
			c.current.Store(nil)
			return nil, err
		}
		c.publish(g)
		return g, nil
	})
}

// shared runs build once per key for all concurrent callers. The build runs
// detached from the caller's cancellation; each caller waits on its own ctx.
func (c *GraphCache) shared(ctx context.Context, key string, build func(context.Context) (*domain.PathGraph, error)) (*domain.PathGraph, error) {
	if c.ctx.Err() != nil {
		return nil, ErrCacheClosed
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		buildCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()

		return build(buildCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.PathGraph), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *GraphCache) publish(g *domain.PathGraph) {
	c.current.Store(g)
	metrics.SetGraphStats(g.Stats())
}

// load decodes the cache file. Any failure is treated as no cache.
func (c *GraphCache) load() *domain.PathGraph {
	log := logger.With("cache", c.path)
	start := time.Now()

	f, err := os.Open(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("cannot open cache file", "error", err)
		}
		metrics.RecordCacheLoad("miss", 0)
		return nil
	}
	defer f.Close()

	g, err := decodeFile(f)
	if err != nil {
		log.Warn("discarding unusable cache file", "error", err)
		metrics.RecordCacheLoad("corrupt", 0)
		c.record(state.ScanRecord{
			ScanID:    uuid.NewString(),
			Source:    state.SourceCache,
			StartTime: start,
			EndTime:   time.Now(),
			Status:    state.StatusFailed,
			Error:     err.Error(),
		})
		return nil
	}

	if !c.rootsMatch(g) {
		log.Info("cache file was built from other roots, rescanning",
			"cached_roots", g.Roots,
			"roots", c.roots,
		)
		metrics.RecordCacheLoad("stale", 0)
		return nil
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	metrics.RecordCacheLoad("hit", size)

	stats := g.Stats()
	c.record(state.ScanRecord{
		ScanID:     uuid.NewString(),
		Source:     state.SourceCache,
		StartTime:  start,
		EndTime:    time.Now(),
		Status:     state.StatusSuccess,
		Entries:    stats.Entries,
		Unreadable: stats.UnreadableFiles + stats.UnreadableDirectories,
		TotalBytes: stats.TotalBytes,
	})
	log.Info("cache loaded",
		"entries", stats.Entries,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return g
}

// rootsMatch compares the graph roots with the configured roots in order
func (c *GraphCache) rootsMatch(g *domain.PathGraph) bool {
	if len(c.roots) == 0 {
		return true
	}
	return slices.Equal(c.roots, g.Roots)
}

func decodeFile(r io.Reader) (*domain.PathGraph, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	defer zr.Close()

	return codec.Decode(zr)
}

// rebuild scans and persists. Persist failures are logged only.
func (c *GraphCache) rebuild(ctx context.Context) (*domain.PathGraph, error) {
	scanID := uuid.NewString()
	log := logger.With("scan_id", scanID)
	start := time.Now()

	log.Info("scan started")
	g, err := c.scanner.Scan(ctx)
	if err != nil {
		metrics.RecordScan(time.Since(start), 0, false)
		c.record(state.ScanRecord{
			ScanID:    scanID,
			Source:    state.SourceScan,
			StartTime: start,
			EndTime:   time.Now(),
			Status:    state.StatusFailed,
			Error:     err.Error(),
		})
		log.Error("scan failed", "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrNoGraph, err)
	}

	stats := g.Stats()
	unreadable := stats.UnreadableFiles + stats.UnreadableDirectories
	metrics.RecordScan(time.Since(start), unreadable, true)
	c.record(state.ScanRecord{
		ScanID:     scanID,
		Source:     state.SourceScan,
		StartTime:  start,
		EndTime:    time.Now(),
		Status:     state.StatusSuccess,
		Entries:    stats.Entries,
		Unreadable: unreadable,
		TotalBytes: stats.TotalBytes,
	})
	log.Info("scan finished",
		"entries", stats.Entries,
		"unreadable", unreadable,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if err := c.persist(g); err != nil {
		if lock.IsLockError(err) {
			args := []any{"error", err}
			if holder, herr := c.lock.GetHolder(); herr == nil {
				args = append(args, "holder_pid", holder.PID, "holder_operation", holder.Operation)
			}
			log.Warn("cache file busy, not persisted", args...)
			metrics.RecordCacheWrite("locked", 0)
		} else {
			log.Error("failed to persist cache", "error", err)
			metrics.RecordCacheWrite("error", 0)
		}
	}
	return g, nil
}

// persist writes g to a temp file next to the cache file and renames it
// into place while holding the cache lock
func (c *GraphCache) persist(g *domain.PathGraph) error {
	return c.lock.With("persist", func() error {
		tmp, err := os.CreateTemp(filepath.Dir(c.path), "."+filepath.Base(c.path)+".*.tmp")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath) // no-op after a successful rename

		size, err := c.writeTo(tmp, g)
		if closeErr := tmp.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close temp file: %w", closeErr)
		}
		if err != nil {
			return err
		}

		if err := os.Rename(tmpPath, c.path); err != nil {
			return fmt.Errorf("failed to move cache file into place: %w", err)
		}

		metrics.RecordCacheWrite("ok", size)
		logger.Get().Debug("cache persisted", "cache", c.path, "bytes", size)
		return nil
	})
}

func (c *GraphCache) writeTo(f *os.File, g *domain.PathGraph) (int64, error) {
	zw, err := gzip.NewWriterLevel(f, c.level)
	if err != nil {
		return 0, err
	}
	if err := codec.Encode(zw, g); err != nil {
		zw.Close()
		return 0, fmt.Errorf("failed to encode graph: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush compressed data: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, nil
	}
	return info.Size(), nil
}

// remove deletes the cache file; failures are logged only
func (c *GraphCache) remove() {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Get().Warn("failed to delete cache file", "cache", c.path, "error", err)
	}
}

func (c *GraphCache) record(r state.ScanRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.SaveScan(r); err != nil {
		logger.Get().Warn("failed to record scan history", "scan_id", r.ScanID, "error", err)
	}
}
