package domain

import (
	"fmt"
	"time"
)

// PathKind classifies a filesystem entry
type PathKind int

const (
	KindFile PathKind = iota
	KindDirectory
	KindSymlink
	KindUnreadableFile
	KindUnreadableDirectory
)

// Code returns the one-letter code used in the cache file
func (k PathKind) Code() string {
	switch k {
	case KindFile:
		return "F"
	case KindDirectory:
		return "D"
	case KindSymlink:
		return "L"
	case KindUnreadableFile:
		return "X"
	case KindUnreadableDirectory:
		return "U"
	}
	return "?"
}

// String returns a readable name for the kind
func (k PathKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindUnreadableFile:
		return "unreadable-file"
	case KindUnreadableDirectory:
		return "unreadable-directory"
	}
	return "unknown"
}

// IsValid checks if the kind is a known value
func (k PathKind) IsValid() bool {
	switch k {
	case KindFile, KindDirectory, KindSymlink, KindUnreadableFile, KindUnreadableDirectory:
		return true
	}
	return false
}

// IsUnreadable reports whether the entry's metadata or children could not be read
func (k PathKind) IsUnreadable() bool {
	return k == KindUnreadableFile || k == KindUnreadableDirectory
}

// ParseKind converts a one-letter cache code into a PathKind
func ParseKind(code string) (PathKind, error) {
	switch code {
	case "F":
		return KindFile, nil
	case "D":
		return KindDirectory, nil
	case "L":
		return KindSymlink, nil
	case "X":
		return KindUnreadableFile, nil
	case "U":
		return KindUnreadableDirectory, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, code)
}

// PathRecord describes one filesystem entry and its place in the tree
type PathRecord struct {
	// ParentPath is the absolute path of the containing directory.
	// Empty for filesystem roots.
	ParentPath string

	// Kind classifies the entry
	Kind PathKind

	// Name is the final path component, or the whole path for roots
	Name string

	// ModifiedAtMillis is the modification time in epoch milliseconds (0 when unreadable)
	ModifiedAtMillis int64

	// SizeBytes is the entry's own size (0 for directories, symlinks and unreadable entries)
	SizeBytes int64

	// Children holds absolute paths of immediate children (directories only)
	Children []string
}

// HasParent returns true unless the record is a root
func (r *PathRecord) HasParent() bool {
	return r.ParentPath != ""
}

// IsDir returns true if this is a readable directory
func (r *PathRecord) IsDir() bool {
	return r.Kind == KindDirectory
}

// ModTime returns the modification time as a time.Time
func (r *PathRecord) ModTime() time.Time {
	if r.ModifiedAtMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.ModifiedAtMillis)
}

// NewUnreadableRecord returns the sentinel record substituted for an entry that failed to read
func NewUnreadableRecord(parent, name string, kind PathKind) *PathRecord {
	return &PathRecord{
		ParentPath: parent,
		Kind:       kind,
		Name:       name,
	}
}

func (r *PathRecord) equal(o *PathRecord) bool {
	if r.ParentPath != o.ParentPath || r.Kind != o.Kind || r.Name != o.Name ||
		r.ModifiedAtMillis != o.ModifiedAtMillis || r.SizeBytes != o.SizeBytes ||
		len(r.Children) != len(o.Children) {
		return false
	}
	for i := range r.Children {
		if r.Children[i] != o.Children[i] {
			return false
		}
	}
	return true
}
