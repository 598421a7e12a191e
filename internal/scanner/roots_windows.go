//go:build windows

package scanner

import "os"

// DefaultRoots returns every drive letter that currently exists
func DefaultRoots() []string {
	var roots []string
	for drive := 'A'; drive <= 'Z'; drive++ {
		root := string(drive) + `:\`
		if _, err := os.Stat(root); err == nil {
			roots = append(roots, root)
		}
	}
	return roots
}
