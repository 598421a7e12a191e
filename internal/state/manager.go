package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the name of the history database inside the state directory
const DBFileName = "diskgraph.db"

// Graph sources
const (
	SourceScan  = "scan"
	SourceCache = "cache"
)

// Statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Manager persists the history of graph builds
type Manager struct {
	db *sql.DB
}

// ScanRecord is one attempt to obtain a graph, either by scanning or by
// loading the cache file
type ScanRecord struct {
	ID         int64     `json:"-"`
	ScanID     string    `json:"scan_id"`
	Source     string    `json:"source"` // "scan" or "cache"
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"` // "success" or "failed"
	Entries    int       `json:"entries"`
	Unreadable int       `json:"unreadable"`
	TotalBytes int64     `json:"total_bytes"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the attempt took
func (r ScanRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// NewManager opens (or creates) the history database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection avoids "database is locked"
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		source TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		entries INTEGER DEFAULT 0,
		unreadable INTEGER DEFAULT 0,
		total_bytes INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scans_source_time ON scans(source, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveScan records one attempt
func (m *Manager) SaveScan(record ScanRecord) error {
	if record.Status != StatusSuccess && record.Status != StatusFailed {
		return fmt.Errorf("invalid status: %s (must be 'success' or 'failed')", record.Status)
	}
	if record.Source != SourceScan && record.Source != SourceCache {
		return fmt.Errorf("invalid source: %s (must be 'scan' or 'cache')", record.Source)
	}

	query := `
		INSERT INTO scans (scan_id, source, start_time, end_time, status, entries, unreadable, total_bytes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.ScanID,
		record.Source,
		record.StartTime,
		record.EndTime,
		record.Status,
		record.Entries,
		record.Unreadable,
		record.TotalBytes,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan record: %w", err)
	}

	return nil
}

const selectColumns = `
	SELECT id, scan_id, source, start_time, end_time, status, entries, unreadable, total_bytes, error
	FROM scans
`

// GetHistory returns the newest attempts, newest first
func (m *Manager) GetHistory(limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	return m.query(selectColumns+`ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
}

// GetHistoryBySource returns the newest attempts from source
func (m *Manager) GetHistoryBySource(source string, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	return m.query(selectColumns+`WHERE source = ? ORDER BY start_time DESC, id DESC LIMIT ?`, source, limit)
}

// GetLastSuccess returns the newest successful attempt from source, or nil
func (m *Manager) GetLastSuccess(source string) (*ScanRecord, error) {
	records, err := m.query(selectColumns+`WHERE source = ? AND status = 'success' ORDER BY start_time DESC, id DESC LIMIT 1`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (m *Manager) query(query string, args ...any) ([]ScanRecord, error) {
	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var record ScanRecord
		var errText sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.ScanID,
			&record.Source,
			&record.StartTime,
			&record.EndTime,
			&record.Status,
			&record.Entries,
			&record.Unreadable,
			&record.TotalBytes,
			&errText,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.Error = errText.String
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
