package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ning0612/Diskgraph/internal/config"
	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/testutil"
	"github.com/Ning0612/Diskgraph/internal/web"
)

// testConfig scans a temp directory holding /data/x (100 bytes) and
// /data/b/y (50 bytes)
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	testutil.CreateTestFileWithSize(t, root, "x", 100)
	testutil.CreateTestFileWithSize(t, root, filepath.Join("b", "y"), 50)

	return &config.Config{
		Scan: config.ScanConfig{Roots: []string{root}},
		Cache: config.CacheConfig{
			Path:             filepath.Join(dir, "cache", "graph.bin.gz"),
			CompressionLevel: 5,
		},
		State: config.StateConfig{
			Enabled: true,
			Dir:     filepath.Join(dir, "state"),
		},
		Server: config.ServerConfig{
			Addr:    "127.0.0.1:0",
			PIDFile: filepath.Join(dir, "state", "serve.pid"),
		},
	}
}

func newGraphService(t *testing.T, cfg *config.Config) *GraphService {
	t.Helper()

	graphs, err := NewGraphService(cfg)
	if err != nil {
		t.Fatalf("NewGraphService() error = %v", err)
	}
	t.Cleanup(func() { graphs.Close() })
	return graphs
}

func newDaemon(t *testing.T, cfg *config.Config, interval time.Duration) *DaemonService {
	t.Helper()

	d, err := NewDaemonService(newGraphService(t, cfg), DaemonOptions{
		Addr:            cfg.Server.Addr,
		RefreshInterval: interval,
		PIDFile:         cfg.Server.PIDFile,
	})
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	return d
}

// waitReady blocks until the warm-up load has published a graph
func waitReady(t *testing.T, d *DaemonService) {
	t.Helper()

	if _, err := d.graphs.Get(context.Background()); err != nil {
		t.Fatalf("graph not available: %v", err)
	}
}

func stopDaemon(t *testing.T, d *DaemonService) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultWait)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop daemon: %v", err)
	}
}

func TestNewDaemonService_Validation(t *testing.T) {
	cfg := testConfig(t)
	graphs := newGraphService(t, cfg)

	tests := []struct {
		name   string
		graphs *GraphService
		opts   DaemonOptions
	}{
		{"nil graphs", nil, DaemonOptions{Addr: ":0"}},
		{"empty addr", graphs, DaemonOptions{}},
		{"negative interval", graphs, DaemonOptions{Addr: ":0", RefreshInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDaemonService(tt.graphs, tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDaemonService_StartStop(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg, 0)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}

	status := d.Status()
	if !status.Running || status.Addr == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.SchedulerStats != nil {
		t.Error("no scheduler expected without refresh interval")
	}
	if _, err := os.Stat(cfg.Server.PIDFile); err != nil {
		t.Errorf("PID file not written: %v", err)
	}

	// listing is served once the warm-up scan is published
	var body web.ListResponse
	testutil.AssertEventually(t, testutil.DefaultWait, func() bool {
		resp, err := http.Get("http://" + d.Addr() + "/api/v1/list?path=" + cfg.Scan.Roots[0])
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil
	}, "listing never served")

	if body.Total != 150 || len(body.Entries) != 2 {
		t.Errorf("unexpected listing %+v", body)
	}

	stopDaemon(t, d)

	if d.Status().Running {
		t.Error("Daemon should not be running after stop")
	}
	if _, err := os.Stat(cfg.Server.PIDFile); !os.IsNotExist(err) {
		t.Error("PID file should be removed on stop")
	}
	select {
	case err := <-d.Done():
		if err != nil {
			t.Errorf("serve error = %v", err)
		}
	case <-time.After(testutil.DefaultWait):
		t.Error("server did not exit")
	}
}

func TestDaemonService_DoubleStart(t *testing.T) {
	d := newDaemon(t, testConfig(t), 0)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer stopDaemon(t, d)
	waitReady(t, d)

	if err := d.Start(context.Background()); err == nil {
		t.Error("Expected error when starting already running daemon")
	}
}

func TestDaemonService_PIDFileHeld(t *testing.T) {
	cfg := testConfig(t)
	first := newDaemon(t, cfg, 0)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer stopDaemon(t, first)
	waitReady(t, first)

	// this process already owns the PID file
	second := newDaemon(t, cfg, 0)
	err := second.Start(context.Background())
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestDaemonService_StopNotRunning(t *testing.T) {
	d := newDaemon(t, testConfig(t), 0)

	if err := d.Stop(context.Background()); err == nil {
		t.Error("Expected error when stopping non-running daemon")
	}
}

func TestDaemonService_PeriodicReload(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg, 50*time.Millisecond)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}

	status := d.Status()
	if status.SchedulerStats == nil {
		t.Fatal("Scheduler stats should not be nil when refresh is enabled")
	}

	testutil.AssertEventually(t, testutil.DefaultWait, func() bool {
		s := d.Status().SchedulerStats
		return s != nil && s.SuccessfulRuns >= 1
	}, "no successful reload")

	stopDaemon(t, d)

	if last := d.Status().LastScan; last == nil || last.Entries != 4 {
		t.Errorf("LastScan = %+v", last)
	}
}

func TestDaemonService_HealthReportsStatus(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg, time.Hour)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer stopDaemon(t, d)
	waitReady(t, d)

	var body struct {
		Status string       `json:"status"`
		Server DaemonStatus `json:"server"`
	}
	testutil.AssertEventually(t, testutil.DefaultWait, func() bool {
		resp, err := http.Get("http://" + d.Addr() + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		return body.Server.LastScan != nil
	}, "health never reported the warm-up scan")

	if body.Status != "ok" || !body.Server.Running || body.Server.Addr != d.Addr() {
		t.Errorf("unexpected health %+v", body)
	}
	if body.Server.CacheBusy {
		t.Error("cache should not be busy once the warm-up scan is persisted")
	}
	if body.Server.SchedulerStats == nil || !body.Server.SchedulerStats.Running {
		t.Errorf("scheduler status missing: %+v", body.Server.SchedulerStats)
	}
	if body.Server.LastScan.Entries != 4 || body.Server.LastScan.TotalBytes != 150 {
		t.Errorf("LastScan = %+v", body.Server.LastScan)
	}
}
