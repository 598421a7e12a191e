// Package scanner walks filesystem roots and builds a domain.PathGraph.
//
// Symbolic links are recorded but never followed. Entries that cannot be
// read are recorded as unreadable instead of aborting the walk; only a root
// that cannot be enumerated fails the scan.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/logger"
	"github.com/Ning0612/Diskgraph/internal/progress"
)

// Scanner builds path graphs from a filesystem
type Scanner struct {
	fs       afero.Fs
	roots    []string
	reporter progress.Reporter
}

// New creates a scanner over fs for the given absolute roots.
// Roots are cleaned and must not contain one another.
func New(fs afero.Fs, roots []string) (*Scanner, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one root is required")
	}

	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if !filepath.IsAbs(root) {
			return nil, fmt.Errorf("root must be absolute: %s", root)
		}
		root = filepath.Clean(root)
		for _, other := range cleaned {
			if contains(other, root) || contains(root, other) {
				return nil, fmt.Errorf("overlapping roots: %s and %s", other, root)
			}
		}
		cleaned = append(cleaned, root)
	}

	return &Scanner{
		fs:    fs,
		roots: cleaned,
	}, nil
}

// contains reports whether path equals dir or lies below it
func contains(dir, path string) bool {
	if dir == path {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SetProgressReporter sets the sink for scan progress
func (s *Scanner) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// Roots returns the cleaned scan roots
func (s *Scanner) Roots() []string {
	return append([]string(nil), s.roots...)
}

func (s *Scanner) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

// Scan walks every root and returns the complete graph.
// Roots are walked concurrently into separate partitions which are merged in
// root order once all of them succeeded; nothing partial is ever returned.
func (s *Scanner) Scan(ctx context.Context) (*domain.PathGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	partials := make([]*domain.PathGraph, len(s.roots))
	g, gctx := errgroup.WithContext(ctx)
	for i, root := range s.roots {
		g.Go(func() error {
			partial, err := s.scanRoot(gctx, root)
			if err != nil {
				return err
			}
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := domain.NewPathGraph()
	for _, partial := range partials {
		graph.Merge(partial)
	}
	return graph, nil
}

func (s *Scanner) scanRoot(ctx context.Context, root string) (*domain.PathGraph, error) {
	log := logger.With("root", root)
	start := time.Now()
	log.Info("scanning root")

	graph := domain.NewPathGraph()
	graph.Roots = []string{root}

	w := &walker{
		fs:       s.fs,
		records:  graph.Records,
		reporter: s.getReporter(),
		log:      log,
	}

	info, err := w.lstat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrRootUnreadable, root, mapError(err))
	}

	if classify(info) == domain.KindDirectory {
		names, err := w.list(root)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrRootUnreadable, root, mapError(err))
		}
		if err := w.directory(ctx, root, "", info, names); err != nil {
			return nil, err
		}
	} else {
		w.leaf(root, "", info)
	}

	log.Info("root scanned",
		"entries", graph.Len(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return graph, nil
}

// walker performs the depth-first walk of a single root
type walker struct {
	fs       afero.Fs
	records  map[string]*domain.PathRecord
	reporter progress.Reporter
	log      logger.Logger
}

// visit records path and, for directories, its subtree.
// Only context cancellation is returned as an error.
func (w *walker) visit(ctx context.Context, path, parent string) error {
	info, err := w.lstat(path)
	if err != nil {
		w.unreadable(path, parent, domain.KindUnreadableFile, err)
		return nil
	}

	if classify(info) != domain.KindDirectory {
		w.leaf(path, parent, info)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	names, err := w.list(path)
	if err != nil {
		w.unreadable(path, parent, domain.KindUnreadableDirectory, err)
		w.reporter.DirectoryDone(path)
		return nil
	}
	return w.directory(ctx, path, parent, info, names)
}

// directory walks the children of path and publishes its record afterwards
func (w *walker) directory(ctx context.Context, path, parent string, info os.FileInfo, names []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	children := make([]string, len(names))
	for i, name := range names {
		children[i] = filepath.Join(path, name)
	}

	for _, child := range children {
		if err := w.visit(ctx, child, path); err != nil {
			return err
		}
	}

	w.records[path] = &domain.PathRecord{
		ParentPath:       parent,
		Kind:             domain.KindDirectory,
		Name:             nameOf(path),
		ModifiedAtMillis: info.ModTime().UnixMilli(),
		Children:         children,
	}
	w.reporter.EntryVisited(path, domain.KindDirectory, 0)
	w.reporter.DirectoryDone(path)
	return nil
}

// leaf records a file, symlink or special file
func (w *walker) leaf(path, parent string, info os.FileInfo) {
	kind := classify(info)

	var size int64
	if kind == domain.KindFile {
		size = info.Size()
	}

	w.records[path] = &domain.PathRecord{
		ParentPath:       parent,
		Kind:             kind,
		Name:             nameOf(path),
		ModifiedAtMillis: info.ModTime().UnixMilli(),
		SizeBytes:        size,
	}
	w.reporter.EntryVisited(path, kind, size)
}

// unreadable substitutes a sentinel record for an entry that failed to read
func (w *walker) unreadable(path, parent string, kind domain.PathKind, err error) {
	if kind == domain.KindUnreadableDirectory {
		w.log.Warn("cannot read directory", "path", path, "error", err)
	} else {
		w.log.Warn("cannot read file", "path", path, "error", err)
	}

	w.records[path] = domain.NewUnreadableRecord(parent, nameOf(path), kind)
	w.reporter.Error(path, mapError(err))
	w.reporter.EntryVisited(path, kind, 0)
}

// lstat stats path without following a final symlink when the Fs allows it
func (w *walker) lstat(path string) (os.FileInfo, error) {
	if l, ok := w.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return w.fs.Stat(path)
}

// list returns the names in a directory, sorted lexically
func (w *walker) list(path string) ([]string, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// classify maps a FileInfo onto a readable kind
func classify(info os.FileInfo) domain.PathKind {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return domain.KindSymlink
	case info.IsDir():
		return domain.KindDirectory
	default:
		return domain.KindFile
	}
}

// nameOf returns the last path element, or the whole path for a root like "/"
func nameOf(path string) string {
	_, file := filepath.Split(path)
	if file == "" {
		return path
	}
	return file
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && strings.Contains(pathErr.Err.Error(), "not a directory") {
		return fmt.Errorf("%w: %v", domain.ErrNotDirectory, err)
	}

	return err
}
