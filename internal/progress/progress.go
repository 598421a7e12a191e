package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/logger"
)

// Reporter receives scan progress notifications.
// Implementations must be safe for concurrent use; roots are scanned in parallel.
type Reporter interface {
	// EntryVisited is called once for every recorded entry
	EntryVisited(path string, kind domain.PathKind, size int64)
	// DirectoryDone is called after a directory and all its children are recorded
	DirectoryDone(path string)
	// Error reports a per-entry read failure that was recovered
	Error(path string, err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type          UpdateType
	CurrentPath   string
	Kind          domain.PathKind
	EntriesSeen   int
	DirsCompleted int
	BytesSeen     int64
	Unreadable    int
	Error         error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateEntry UpdateType = iota
	UpdateDirectoryDone
	UpdateError
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback      Callback
	mu            sync.Mutex
	entriesSeen   int
	dirsCompleted int
	bytesSeen     int64
	unreadable    int
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
	}
}

// EntryVisited counts the entry and forwards an update
func (r *CallbackReporter) EntryVisited(path string, kind domain.PathKind, size int64) {
	r.mu.Lock()
	r.entriesSeen++
	r.bytesSeen += size
	if kind.IsUnreadable() {
		r.unreadable++
	}

	update := r.snapshot(UpdateEntry, path)
	update.Kind = kind
	callback := r.callback
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// DirectoryDone forwards the finished directory
func (r *CallbackReporter) DirectoryDone(path string) {
	r.mu.Lock()
	r.dirsCompleted++
	update := r.snapshot(UpdateDirectoryDone, path)
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Error forwards a recovered read failure
func (r *CallbackReporter) Error(path string, err error) {
	r.mu.Lock()
	update := r.snapshot(UpdateError, path)
	update.Error = err
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// snapshot must be called with r.mu held
func (r *CallbackReporter) snapshot(t UpdateType, path string) Update {
	return Update{
		Type:          t,
		CurrentPath:   path,
		EntriesSeen:   r.entriesSeen,
		DirsCompleted: r.dirsCompleted,
		BytesSeen:     r.bytesSeen,
		Unreadable:    r.unreadable,
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) EntryVisited(path string, kind domain.PathKind, size int64) {}
func (NullReporter) DirectoryDone(path string)                                {}
func (NullReporter) Error(path string, err error)                             {}

// TickerReporter periodically logs the last finished directory so operators
// can follow a long scan. It never blocks the scanner.
type TickerReporter struct {
	interval time.Duration
	lastPath atomic.Pointer[string]
	entries  atomic.Int64
	dirs     atomic.Int64

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewTickerReporter starts a reporter that logs every interval until Close is called
func NewTickerReporter(interval time.Duration) *TickerReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r := &TickerReporter{
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *TickerReporter) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var reported string
	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			last := r.LastPath()
			if last == "" || last == reported {
				continue
			}
			reported = last
			logger.Get().Info("scanning",
				"last_path", last,
				"entries", r.entries.Load(),
				"directories", r.dirs.Load(),
			)
		}
	}
}

// EntryVisited counts the entry
func (r *TickerReporter) EntryVisited(path string, kind domain.PathKind, size int64) {
	r.entries.Add(1)
}

// DirectoryDone records path as the last visited directory
func (r *TickerReporter) DirectoryDone(path string) {
	r.dirs.Add(1)
	r.lastPath.Store(&path)
}

// Error is ignored; the scanner logs read failures itself
func (r *TickerReporter) Error(path string, err error) {}

// LastPath returns the most recently finished directory
func (r *TickerReporter) LastPath() string {
	if p := r.lastPath.Load(); p != nil {
		return *p
	}
	return ""
}

// Close stops the logging goroutine. It is safe to call more than once.
func (r *TickerReporter) Close() error {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	<-r.done
	return nil
}

// Multi fans out notifications to several reporters
type Multi []Reporter

func (m Multi) EntryVisited(path string, kind domain.PathKind, size int64) {
	for _, r := range m {
		r.EntryVisited(path, kind, size)
	}
}

func (m Multi) DirectoryDone(path string) {
	for _, r := range m {
		r.DirectoryDone(path)
	}
}

func (m Multi) Error(path string, err error) {
	for _, r := range m {
		r.Error(path, err)
	}
}
