package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/Ning0612/Diskgraph/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. DISKGRAPH_CACHE_PATH
const EnvPrefix = "DISKGRAPH"

const appName = "diskgraph"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
		filepath.Join(xdg.ConfigHome, appName),
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, "."+appName))
	}

	return paths
}

// setDefaults registers every key so env overrides reach Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.roots", []string{})
	v.SetDefault("scan.progress_interval", 5*time.Second)

	v.SetDefault("cache.path", filepath.Join(xdg.CacheHome, appName, "graph.bin.gz"))
	v.SetDefault("cache.compression_level", 5)
	v.SetDefault("cache.refresh_interval", time.Duration(0))
	v.SetDefault("cache.lock_stale_timeout", 30*time.Minute)

	v.SetDefault("state.enabled", true)
	v.SetDefault("state.dir", filepath.Join(xdg.StateHome, appName))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.mask_home", false)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.pid_file", filepath.Join(xdg.StateHome, appName, "serve.pid"))
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. With an explicit path the file must exist;
// otherwise the default locations are searched and a missing config.yaml
// leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case path != "" && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)):
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		case errors.As(err, &notFound):
			// defaults only
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string on top of the defaults
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
