//go:build !windows

package scanner

// DefaultRoots returns the filesystem roots scanned when none are configured
func DefaultRoots() []string {
	return []string{"/"}
}
