package domain

import "errors"

// Scan errors
var (
	// ErrNotFound indicates the requested path is not part of the graph
	ErrNotFound = errors.New("path not found")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got something else
	ErrNotDirectory = errors.New("not a directory")

	// ErrRootUnreadable indicates a scan root could not be enumerated
	ErrRootUnreadable = errors.New("root cannot be read")
)

// Graph and cache errors
var (
	// ErrInvalidGraph indicates a graph violates its structural invariants
	ErrInvalidGraph = errors.New("invalid path graph")

	// ErrCacheCorrupt indicates the persisted graph could not be decoded
	ErrCacheCorrupt = errors.New("cache file corrupt")

	// ErrNoGraph indicates neither the cache nor a fresh scan produced a graph
	ErrNoGraph = errors.New("no path graph available")

	// ErrUnknownKind indicates an unrecognised path kind code
	ErrUnknownKind = errors.New("unknown path kind")
)

// Server errors
var (
	// ErrAlreadyRunning indicates another server process holds the PID file
	ErrAlreadyRunning = errors.New("server already running")

	// ErrNotRunning indicates no server process was found
	ErrNotRunning = errors.New("server not running")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
