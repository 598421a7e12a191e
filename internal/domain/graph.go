package domain

import "fmt"

// PathGraph is the result of a whole scan: the roots plus every visited entry.
// A graph is never modified once published; a rebuild produces a new one.
type PathGraph struct {
	// Roots are the absolute paths the scan started from, in scan order
	Roots []string

	// Records maps absolute path to its record
	Records map[string]*PathRecord
}

// GraphStats summarises a graph
type GraphStats struct {
	Entries               int
	Files                 int
	Directories           int
	Symlinks              int
	UnreadableFiles       int
	UnreadableDirectories int
	TotalBytes            int64
}

// NewPathGraph creates an empty graph
func NewPathGraph() *PathGraph {
	return &PathGraph{Records: make(map[string]*PathRecord)}
}

// Len returns the number of records
func (g *PathGraph) Len() int {
	return len(g.Records)
}

// Lookup returns the record for path
func (g *PathGraph) Lookup(path string) (*PathRecord, error) {
	r, ok := g.Records[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return r, nil
}

// Stats counts entries by kind and sums own sizes
func (g *PathGraph) Stats() GraphStats {
	var s GraphStats
	for _, r := range g.Records {
		s.Entries++
		s.TotalBytes += r.SizeBytes
		switch r.Kind {
		case KindFile:
			s.Files++
		case KindDirectory:
			s.Directories++
		case KindSymlink:
			s.Symlinks++
		case KindUnreadableFile:
			s.UnreadableFiles++
		case KindUnreadableDirectory:
			s.UnreadableDirectories++
		}
	}
	return s
}

// Validate checks that every referenced path is present, that parent links
// match the listing directory and that only directories have children.
func (g *PathGraph) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil graph", ErrInvalidGraph)
	}
	for _, root := range g.Roots {
		r, ok := g.Records[root]
		if !ok {
			return fmt.Errorf("%w: missing root %s", ErrInvalidGraph, root)
		}
		if r.HasParent() {
			return fmt.Errorf("%w: root %s has parent %s", ErrInvalidGraph, root, r.ParentPath)
		}
	}
	for path, r := range g.Records {
		if !r.Kind.IsValid() {
			return fmt.Errorf("%w: %s has kind %d", ErrInvalidGraph, path, r.Kind)
		}
		if r.Kind != KindDirectory && len(r.Children) > 0 {
			return fmt.Errorf("%w: %s is a %s with children", ErrInvalidGraph, path, r.Kind)
		}
		for _, child := range r.Children {
			c, ok := g.Records[child]
			if !ok {
				return fmt.Errorf("%w: missing child %s of %s", ErrInvalidGraph, child, path)
			}
			if c.ParentPath != path {
				return fmt.Errorf("%w: %s lists %s but its parent is %q", ErrInvalidGraph, path, child, c.ParentPath)
			}
		}
	}
	return nil
}

// Equal reports whether both graphs hold the same roots and records,
// including children order
func (g *PathGraph) Equal(o *PathGraph) bool {
	if g == nil || o == nil {
		return g == o
	}
	if len(g.Roots) != len(o.Roots) || len(g.Records) != len(o.Records) {
		return false
	}
	for i := range g.Roots {
		if g.Roots[i] != o.Roots[i] {
			return false
		}
	}
	for path, r := range g.Records {
		other, ok := o.Records[path]
		if !ok || !r.equal(other) {
			return false
		}
	}
	return true
}

// Merge adds the roots and records of other into g.
// Callers must ensure the partitions are disjoint.
func (g *PathGraph) Merge(other *PathGraph) {
	g.Roots = append(g.Roots, other.Roots...)
	for path, r := range other.Records {
		g.Records[path] = r
	}
}
