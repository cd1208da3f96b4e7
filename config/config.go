// Package config loads the rabbitlog YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/Alain-L/rabbitlog/logging"
)

// ErrConfigInvalid is returned when a configuration value is out of range.
var ErrConfigInvalid = errors.New("invalid configuration")

// Config holds all rabbitlog configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
	Logging  logging.Config `yaml:"logging"`
}

// DatabaseConfig points at the SQLite file rows are stored in.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig tunes the parse/annotate/persist pipeline.
type IngestConfig struct {
	// ChunkSize is the number of entries handled per pipeline step.
	ChunkSize int `yaml:"chunk_size"`

	// Workers is the number of annotation goroutines; 0 picks a count per chunk.
	Workers int `yaml:"workers"`

	// Syslog strips syslog headers from every line, as --syslog does.
	Syslog bool `yaml:"syslog"`

	// Node is stored with every ingested entry. When empty it is derived
	// from each file name (rabbit@host.log gives rabbit@host); stdin uses
	// "rabbit@localhost".
	Node string `yaml:"node"`
}

// QueryConfig tunes query execution.
type QueryConfig struct {
	// DefaultLimit caps result sets when the query has no explicit limit.
	DefaultLimit int `yaml:"default_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "rabbitlog.db"},
		Ingest: IngestConfig{
			ChunkSize: 4096,
			Workers:   runtime.NumCPU(),
		},
		Query:   QueryConfig{DefaultLimit: 10000},
		Logging: logging.Config{Level: "warn", MaxSize: 50, MaxBackups: 3, MaxAge: 14},
	}
}

// Load reads path on top of the defaults. A missing file is not an error when
// optional is true.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("%w: field=ingest.chunk_size value=%d", ErrConfigInvalid, c.Ingest.ChunkSize)
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("%w: field=ingest.workers value=%d", ErrConfigInvalid, c.Ingest.Workers)
	}
	if c.Query.DefaultLimit <= 0 {
		return fmt.Errorf("%w: field=query.default_limit value=%d", ErrConfigInvalid, c.Query.DefaultLimit)
	}
	return nil
}
