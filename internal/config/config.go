// Package config holds the settings of the prefab tool.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/observability/log"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	LogLevel    log.Level   `json:"log_level" yaml:"log_level"`
	LogEncoding string      `json:"log_encoding" yaml:"log_encoding"`
	Format      format.Kind `json:"format" yaml:"format"`
	SourceDir   string      `json:"source_dir" yaml:"source_dir"`
	OutputDir   string      `json:"output_dir" yaml:"output_dir"`
	Parallelism int         `json:"parallelism" yaml:"parallelism"`
	MaxPolls    int         `json:"max_polls,omitempty" yaml:"max_polls,omitempty"`
}

func Default() *Config {
	return &Config{
		LogLevel:    log.LevelInfo,
		LogEncoding: "console",
		Format:      format.Compact,
		SourceDir:   "prefabs",
		OutputDir:   "cooked",
		Parallelism: runtime.GOMAXPROCS(0),
		MaxPolls:    1000,
	}
}

// LoadYAML reads a config from r on top of the defaults.
func LoadYAML(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the YAML config at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadYAML(f)
}

func (c *Config) Validate() error {
	switch {
	case c.LogEncoding != "console" && c.LogEncoding != "json":
		return fmt.Errorf("%w: log_encoding must be console or json, got %q", ErrInvalid, c.LogEncoding)
	case c.Format != format.Text && c.Format != format.Compact:
		return fmt.Errorf("%w: unknown format %d", ErrInvalid, c.Format)
	case c.SourceDir == "":
		return fmt.Errorf("%w: source_dir is empty", ErrInvalid)
	case c.OutputDir == "":
		return fmt.Errorf("%w: output_dir is empty", ErrInvalid)
	case c.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be positive, got %d", ErrInvalid, c.Parallelism)
	case c.MaxPolls < 0:
		return fmt.Errorf("%w: max_polls must not be negative, got %d", ErrInvalid, c.MaxPolls)
	case sameDir(c.SourceDir, c.OutputDir):
		return fmt.Errorf("%w: output_dir %q is the source directory, cooked files would replace prefabs", ErrInvalid, c.OutputDir)
	}
	return nil
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
