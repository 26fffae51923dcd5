// Package config loads VersionDB settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend types.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendBadger = "badger"
	BackendS3     = "s3"
)

// Config is the top level configuration file.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Repo    RepoConfig    `yaml:"repo"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig selects the KeyStore everything is kept in.
type BackendConfig struct {
	Type string `yaml:"type"`

	// Path is the directory (file, badger) or database file (bolt).
	Path string `yaml:"path,omitempty"`

	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// RepoConfig tunes the versioned repository.
type RepoConfig struct {
	Capacity     int           `yaml:"capacity"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
	LockRetries  int           `yaml:"lock_retries"`
	Cache        bool          `yaml:"cache"`
	HistoryLimit int           `yaml:"history_limit,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Backend: BackendConfig{Type: BackendMemory},
		Repo: RepoConfig{
			Capacity:    100,
			LockTimeout: 5 * time.Second,
			LockRetries: 3,
			Cache:       true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates the file at path. Settings missing from the
// file keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (cfg Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}

func (cfg Config) Validate() error {
	var errs []error
	switch cfg.Backend.Type {
	case BackendMemory:
	case BackendFile, BackendBolt, BackendBadger:
		if cfg.Backend.Path == "" {
			errs = append(errs, fmt.Errorf("backend %s needs a path", cfg.Backend.Type))
		}
	case BackendS3:
		if cfg.Backend.Bucket == "" {
			errs = append(errs, errors.New("backend s3 needs a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q", cfg.Backend.Type))
	}

	if cfg.Repo.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("repo.capacity must be positive, got %d", cfg.Repo.Capacity))
	}
	if cfg.Repo.LockTimeout < 0 {
		errs = append(errs, fmt.Errorf("repo.lock_timeout must not be negative, got %s", cfg.Repo.LockTimeout))
	}
	if cfg.Repo.LockRetries < 0 {
		errs = append(errs, fmt.Errorf("repo.lock_retries must not be negative, got %d", cfg.Repo.LockRetries))
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", cfg.Log.Format))
	}
	return errors.Join(errs...)
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}

// Handler builds the slog handler the log settings describe.
func (l LogConfig) Handler(w io.Writer) slog.Handler {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
