package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/logger"
)

// Config represents the complete configuration for diskgraph
type Config struct {
	Scan   ScanConfig   `mapstructure:"scan"`
	Cache  CacheConfig  `mapstructure:"cache"`
	State  StateConfig  `mapstructure:"state"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

// ScanConfig selects what is scanned
type ScanConfig struct {
	// Roots are absolute paths; empty means the host's filesystem roots
	Roots []string `mapstructure:"roots"`

	// ProgressInterval is how often scan progress is logged; 0 disables it
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// CacheConfig configures the persisted graph
type CacheConfig struct {
	Path             string `mapstructure:"path"`
	CompressionLevel int    `mapstructure:"compression_level"`

	// RefreshInterval triggers a periodic reload in serve mode; 0 disables it
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// LockStaleTimeout is how long a lock held from another host is honoured
	LockStaleTimeout time.Duration `mapstructure:"lock_stale_timeout"`
}

// StateConfig configures the scan history database
type StateConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LogConfig configures logging
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	MaskHome   bool   `mapstructure:"mask_home"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// PIDFile records the serve process; empty disables it
	PIDFile string `mapstructure:"pid_file"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	for i, root := range c.Scan.Roots {
		if root == "" {
			return fmt.Errorf("%w: scan.roots[%d] is empty", domain.ErrConfigInvalid, i)
		}
		if !filepath.IsAbs(root) {
			return fmt.Errorf("%w: scan root must be absolute: %s", domain.ErrConfigInvalid, root)
		}
	}
	if c.Scan.ProgressInterval < 0 {
		return fmt.Errorf("%w: scan.progress_interval cannot be negative", domain.ErrConfigInvalid)
	}

	if c.Cache.Path == "" {
		return fmt.Errorf("%w: cache.path cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Cache.CompressionLevel < gzip.HuffmanOnly || c.Cache.CompressionLevel > gzip.BestCompression {
		return fmt.Errorf("%w: cache.compression_level must be between %d and %d, got %d",
			domain.ErrConfigInvalid, gzip.HuffmanOnly, gzip.BestCompression, c.Cache.CompressionLevel)
	}
	if c.Cache.RefreshInterval < 0 {
		return fmt.Errorf("%w: cache.refresh_interval cannot be negative", domain.ErrConfigInvalid)
	}
	if c.Cache.LockStaleTimeout < 0 {
		return fmt.Errorf("%w: cache.lock_stale_timeout cannot be negative", domain.ErrConfigInvalid)
	}

	if c.State.Enabled && c.State.Dir == "" {
		return fmt.Errorf("%w: state.dir cannot be empty when state is enabled", domain.ErrConfigInvalid)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %s", domain.ErrConfigInvalid, c.Log.Format)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr cannot be empty", domain.ErrConfigInvalid)
	}

	return nil
}

// LoggerConfig converts the log section into a logger configuration.
// Logs go to stderr, plus a rotating file when log.file is set.
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.Config{
		Level:    logger.ParseLevel(c.Log.Level),
		Format:   logger.ParseFormat(c.Log.Format),
		MaskHome: c.Log.MaskHome,
		Outputs: []logger.OutputConfig{
			{Type: logger.OutputStderr},
		},
	}

	if c.Log.File != "" {
		cfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxAgeDays: c.Log.MaxAgeDays,
			MaxBackups: c.Log.MaxBackups,
			Compress:   c.Log.Compress,
		}
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: logger.OutputFile})
	}

	return cfg
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}

func (c *Config) expandPaths() {
	for i := range c.Scan.Roots {
		c.Scan.Roots[i] = ExpandPath(c.Scan.Roots[i])
	}
	c.Cache.Path = ExpandPath(c.Cache.Path)
	c.State.Dir = ExpandPath(c.State.Dir)
	c.Log.File = ExpandPath(c.Log.File)
	c.Server.PIDFile = ExpandPath(c.Server.PIDFile)
}
