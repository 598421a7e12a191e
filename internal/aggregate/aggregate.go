// Package aggregate computes recursive sizes over a path graph.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Ning0612/Diskgraph/internal/domain"
)

// DefaultMemoSize is the number of subtree totals a Memo keeps
const DefaultMemoSize = 65536

// TotalSize returns the own size of path plus, for directories, the total of
// every transitive child. Unknown paths have size 0.
func TotalSize(g *domain.PathGraph, path string) int64 {
	r, ok := g.Records[path]
	if !ok {
		return 0
	}
	size := r.SizeBytes
	if r.Kind == domain.KindDirectory {
		for _, child := range r.Children {
			size += TotalSize(g, child)
		}
	}
	return size
}

// PercentOf returns part as a whole percentage of total, rounded half away
// from zero and clamped to [0,100]. A zero total yields 0.
func PercentOf(total, part int64) int {
	if total <= 0 {
		return 0
	}
	p := math.Round(float64(part) * 100 / float64(total))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// Refresh returns g unchanged. Rebuilding a single subtree is not supported;
// use the cache's Reload for a full rebuild.
func Refresh(g *domain.PathGraph, path string) *domain.PathGraph {
	return g
}

// Row is one entry of a listing
type Row struct {
	Path      string
	Record    *domain.PathRecord
	TotalSize int64
	// Percent is this row's share of the listing's combined total
	Percent int
}

// Listing is the set of rows shown for a directory, or for the roots
type Listing struct {
	// Path is the listed directory, empty for the roots
	Path string
	// Parent of Path, empty for roots and for the root listing
	Parent string
	Rows   []Row
	Total  int64
}

// IsRoots returns true for the root listing
func (l *Listing) IsRoots() bool {
	return l.Path == ""
}

// List returns the children of path with their totals
func List(g *domain.PathGraph, path string) (*Listing, error) {
	return list(g, path, func(p string) int64 { return TotalSize(g, p) })
}

// ListRoots returns the graph roots with their totals
func ListRoots(g *domain.PathGraph) *Listing {
	return listing("", "", g, g.Roots, func(p string) int64 { return TotalSize(g, p) })
}

func list(g *domain.PathGraph, path string, total func(string) int64) (*Listing, error) {
	r, err := g.Lookup(path)
	if err != nil {
		return nil, err
	}
	return listing(path, r.ParentPath, g, r.Children, total), nil
}

func listing(path, parent string, g *domain.PathGraph, paths []string, total func(string) int64) *Listing {
	l := &Listing{
		Path:   path,
		Parent: parent,
		Rows:   make([]Row, 0, len(paths)),
	}
	for _, p := range paths {
		r, ok := g.Records[p]
		if !ok {
			continue
		}
		size := total(p)
		l.Total += size
		l.Rows = append(l.Rows, Row{Path: p, Record: r, TotalSize: size})
	}
	for i := range l.Rows {
		l.Rows[i].Percent = PercentOf(l.Total, l.Rows[i].TotalSize)
	}
	return l
}

// SortBySize orders rows by total size, largest first, ties by name
func SortBySize(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalSize != rows[j].TotalSize {
			return rows[i].TotalSize > rows[j].TotalSize
		}
		return rows[i].Record.Name < rows[j].Record.Name
	})
}

// SortByName orders rows by name
func SortByName(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Record.Name < rows[j].Record.Name
	})
}

// Memo caches subtree totals for one graph. A Memo must be discarded together
// with its graph; it is safe for concurrent use.
type Memo struct {
	graph  *domain.PathGraph
	totals *lru.Cache[string, int64]
}

// NewMemo creates a memo bound to g holding up to size totals
func NewMemo(g *domain.PathGraph, size int) (*Memo, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", domain.ErrNoGraph)
	}
	if size <= 0 {
		size = DefaultMemoSize
	}
	totals, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memo: %w", err)
	}
	return &Memo{graph: g, totals: totals}, nil
}

// Graph returns the graph the memo is bound to
func (m *Memo) Graph() *domain.PathGraph {
	return m.graph
}

// TotalSize is TotalSize on the memo's graph, reusing cached subtree totals
func (m *Memo) TotalSize(path string) int64 {
	if size, ok := m.totals.Get(path); ok {
		return size
	}

	r, ok := m.graph.Records[path]
	if !ok {
		return 0
	}
	size := r.SizeBytes
	if r.Kind == domain.KindDirectory {
		for _, child := range r.Children {
			size += m.TotalSize(child)
		}
		// only directories are worth remembering
		m.totals.Add(path, size)
	}
	return size
}

// List is List on the memo's graph
func (m *Memo) List(path string) (*Listing, error) {
	return list(m.graph, path, m.TotalSize)
}

// ListRoots is ListRoots on the memo's graph
func (m *Memo) ListRoots() *Listing {
	return listing("", "", m.graph, m.graph.Roots, m.TotalSize)
}

// Len returns the number of cached totals
func (m *Memo) Len() int {
	return m.totals.Len()
}
