package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Diskgraph/internal/domain"
)

const (
	// FixedMillis is the modification time used by in-memory fixtures
	FixedMillis int64 = 1700000000000

	// DefaultWait bounds AssertEventually in tests
	DefaultWait = 2 * time.Second
)

// CreateTestFile creates a file under dir, making parent directories as needed
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return path
}

// CreateTestFileWithSize creates a file of exactly size random bytes
func CreateTestFileWithSize(t *testing.T, dir, name string, size int64) string {
	t.Helper()

	buf := make([]byte, size)
	rand.Read(buf)
	return CreateTestFile(t, dir, name, buf)
}

// MemFs builds an in-memory filesystem holding a file of the given size at
// every path in files. Parent directories are created implicitly.
func MemFs(t *testing.T, files map[string]int64) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, size := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := afero.WriteFile(fs, path, make([]byte, size), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return fs
}

// SampleGraph returns the graph
//
//	/a          directory
//	/a/b        directory
//	/a/b/y      file, 50 bytes
//	/a/x        file, 100 bytes
func SampleGraph() *domain.PathGraph {
	g := domain.NewPathGraph()
	g.Roots = []string{"/a"}
	g.Records["/a"] = &domain.PathRecord{
		Kind:             domain.KindDirectory,
		Name:             "a",
		ModifiedAtMillis: FixedMillis,
		Children:         []string{"/a/b", "/a/x"},
	}
	g.Records["/a/b"] = &domain.PathRecord{
		ParentPath:       "/a",
		Kind:             domain.KindDirectory,
		Name:             "b",
		ModifiedAtMillis: FixedMillis,
		Children:         []string{"/a/b/y"},
	}
	g.Records["/a/b/y"] = &domain.PathRecord{
		ParentPath:       "/a/b",
		Kind:             domain.KindFile,
		Name:             "y",
		ModifiedAtMillis: FixedMillis,
		SizeBytes:        50,
	}
	g.Records["/a/x"] = &domain.PathRecord{
		ParentPath:       "/a",
		Kind:             domain.KindFile,
		Name:             "x",
		ModifiedAtMillis: FixedMillis,
		SizeBytes:        100,
	}
	return g
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}
