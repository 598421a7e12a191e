// Package web serves the held path graph as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/Diskgraph/internal/aggregate"
	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/logger"
	"github.com/Ning0612/Diskgraph/internal/metrics"
)

// GraphSource provides the held graph
type GraphSource interface {
	Get(ctx context.Context) (*domain.PathGraph, error)
	Reload(ctx context.Context) (*domain.PathGraph, error)
}

// Entry is one row of a listing response
type Entry struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"size_human"`
	Modified  string `json:"modified,omitempty"`
	Percent   int    `json:"percent"`
}

// ListResponse is returned by the list and reload endpoints
type ListResponse struct {
	Path       string  `json:"path"`
	Parent     string  `json:"parent,omitempty"`
	Total      int64   `json:"total"`
	TotalHuman string  `json:"total_human"`
	Entries    []Entry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the HTTP API server
type Server struct {
	source GraphSource
	status func() any
	// memo is rebuilt whenever the source publishes a different graph
	memo atomic.Pointer[aggregate.Memo]
}

// NewServer creates a server reading graphs from source
func NewServer(source GraphSource) *Server {
	return &Server{source: source}
}

// SetStatusFunc adds the value returned by fn to the health response.
// Must be called before Handler is served.
func (s *Server) SetStatusFunc(fn func() any) {
	s.status = fn
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/list", s.handleList)
	mux.HandleFunc("POST /api/v1/cache/reload", s.handleReload)
	mux.Handle("GET /metrics", metrics.Handler())

	return instrument(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.status != nil {
		body["server"] = s.status()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	g, err := s.source.Get(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	memo, err := s.memoFor(g)
	if err != nil {
		s.sendError(w, err)
		return
	}

	path := r.URL.Query().Get("path")
	var listing *aggregate.Listing
	if path == "" {
		listing = memo.ListRoots()
	} else if listing, err = memo.List(path); err != nil {
		s.sendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(listing))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	g, err := s.source.Reload(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	memo, err := s.memoFor(g)
	if err != nil {
		s.sendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(memo.ListRoots()))
}

// memoFor returns the memo bound to g, replacing a memo of an older graph
func (s *Server) memoFor(g *domain.PathGraph) (*aggregate.Memo, error) {
	if m := s.memo.Load(); m != nil && m.Graph() == g {
		return m, nil
	}
	m, err := aggregate.NewMemo(g, aggregate.DefaultMemoSize)
	if err != nil {
		return nil, err
	}
	s.memo.Store(m)
	return m, nil
}

func newListResponse(l *aggregate.Listing) ListResponse {
	aggregate.SortBySize(l.Rows)

	resp := ListResponse{
		Path:       l.Path,
		Parent:     l.Parent,
		Total:      l.Total,
		TotalHuman: humanize.IBytes(uint64(l.Total)),
		Entries:    make([]Entry, 0, len(l.Rows)),
	}
	for _, row := range l.Rows {
		e := Entry{
			Path:      row.Path,
			Name:      row.Record.Name,
			Kind:      row.Record.Kind.String(),
			Size:      row.TotalSize,
			SizeHuman: humanize.IBytes(uint64(row.TotalSize)),
			Percent:   row.Percent,
		}
		if t := row.Record.ModTime(); !t.IsZero() {
			e.Modified = t.Format(time.RFC3339)
		}
		resp.Entries = append(resp.Entries, e)
	}
	return resp
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoGraph):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	}
	if status >= http.StatusInternalServerError {
		logger.Get().Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Debug("failed to write response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument logs every request and records it in metrics, labelled by the
// matched route pattern
func instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, route, rec.status, duration)
		logger.Get().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", duration,
		)
	})
}
