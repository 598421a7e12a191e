package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/Diskgraph/internal/testutil"
)

// mockRunner counts runs and optionally fails
type mockRunner struct {
	mu        sync.Mutex
	calls     int
	shouldErr bool
}

func (m *mockRunner) Run(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.shouldErr {
		return errors.New("scan failed")
	}
	return nil
}

func (m *mockRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newScheduler(t *testing.T, interval time.Duration, runner Runner) *IntervalScheduler {
	t.Helper()

	s, err := NewIntervalScheduler(Config{Name: "reload", Interval: interval}, runner)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	return s
}

func TestNewIntervalScheduler(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		runner   Runner
		wantErr  bool
	}{
		{"valid", time.Second, &mockRunner{}, false},
		{"zero interval", 0, &mockRunner{}, true},
		{"negative interval", -time.Second, &mockRunner{}, true},
		{"nil runner", time.Second, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewIntervalScheduler(Config{Interval: tt.interval}, tt.runner)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewIntervalScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Fatal("Scheduler is nil")
			}
		})
	}
}

func TestIntervalScheduler_Start(t *testing.T) {
	runner := &mockRunner{}
	s := newScheduler(t, 20*time.Millisecond, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	if !s.Status().Running {
		t.Error("Scheduler should be running")
	}

	testutil.AssertEventually(t, testutil.DefaultWait, func() bool {
		return s.Status().TotalRuns >= 2
	}, "expected at least 2 runs")

	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop scheduler: %v", err)
	}
	if runner.count() < 2 {
		t.Errorf("runner called %d times", runner.count())
	}
}

func TestIntervalScheduler_RunnerFunc(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := newScheduler(t, 10*time.Millisecond, RunnerFunc(func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(testutil.DefaultWait):
		t.Fatal("RunnerFunc was never called")
	}
}

func TestIntervalScheduler_Stop(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond, &mockRunner{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop scheduler: %v", err)
	}
	if s.Status().Running {
		t.Error("Scheduler should not be running after stop")
	}

	if err := s.Stop(); err == nil {
		t.Error("Expected error when stopping twice")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("Expected error when restarting a stopped scheduler")
	}
}

func TestIntervalScheduler_DoubleStart(t *testing.T) {
	s := newScheduler(t, time.Second, &mockRunner{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Error("Expected error when starting already running scheduler")
	}
}

func TestIntervalScheduler_StopNotRunning(t *testing.T) {
	s := newScheduler(t, time.Second, &mockRunner{})

	if err := s.Stop(); err == nil {
		t.Error("Expected error when stopping non-running scheduler")
	}
}

func TestIntervalScheduler_ContextCancellation(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond, &mockRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	cancel()

	testutil.AssertEventually(t, testutil.DefaultWait, func() bool {
		return !s.Status().Running
	}, "scheduler should stop when context is cancelled")
}

func TestIntervalScheduler_ErrorHandling(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond, &mockRunner{shouldErr: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	testutil.AssertEventually(t, testutil.DefaultWait, func() bool {
		return s.Status().FailedRuns > 0
	}, "expected failed runs when runner returns error")

	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop scheduler: %v", err)
	}

	status := s.Status()
	if status.LastError != "scan failed" {
		t.Errorf("LastError = %q", status.LastError)
	}
	if status.SuccessfulRuns != 0 {
		t.Errorf("SuccessfulRuns = %d, want 0", status.SuccessfulRuns)
	}
}

func TestIntervalScheduler_Statistics(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond, &mockRunner{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	testutil.AssertEventually(t, testutil.DefaultWait, func() bool {
		return s.Status().SuccessfulRuns > 0
	})
	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop scheduler: %v", err)
	}

	status := s.Status()
	if status.TotalRuns != status.SuccessfulRuns+status.FailedRuns {
		t.Errorf("inconsistent counters %+v", status)
	}
	if status.LastRunTime.IsZero() {
		t.Error("LastRunTime should be set")
	}
	if status.NextRunTime.IsZero() {
		t.Error("NextRunTime should be set")
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
}
