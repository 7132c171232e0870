// Package config loads packgen.toml, the optional configuration file of the
// packgen tool.
//
//	[generate]
//	output = "packgen_gen.go"
//	build_tags = ["integration"]
//	concurrency = 8
//	log_level = "debug"
//	tests = false
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kanengo/packgen/runtime/logging"
)

// FileName is the name of the configuration file looked up in the working
// directory.
const FileName = "packgen.toml"

const generateKey = "generate"

// Config is the [generate] section of packgen.toml.
type Config struct {
	Output      string   `toml:"output"`
	BuildTags   []string `toml:"build_tags"`
	Concurrency int      `toml:"concurrency"`
	LogLevel    string   `toml:"log_level"`
	Tests       bool     `toml:"tests"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{Output: "packgen_gen.go", LogLevel: "info"}
}

// Load reads FileName from dir. A missing file yields Default().
func Load(dir string) (*Config, error) {
	file := filepath.Join(dir, FileName)
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(file, string(data))
}

// Parse parses the contents of a configuration file. file is only used in
// error messages.
func Parse(file, input string) (*Config, error) {
	var sections map[string]toml.Primitive
	md, err := toml.Decode(input, &sections)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	config := Default()
	for key, section := range sections {
		if key != generateKey {
			return nil, fmt.Errorf("%s: unknown section %q", file, key)
		}
		if err := md.PrimitiveDecode(section, config); err != nil {
			return nil, fmt.Errorf("%s: section %q: %w", file, key, err)
		}
	}

	if unknown := md.Undecoded(); len(unknown) > 0 {
		return nil, fmt.Errorf("%s: section %q has unknown keys %v", file, generateKey, unknown)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: section %q is invalid: %w", file, generateKey, err)
	}

	return config, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error
	switch {
	case !strings.HasSuffix(c.Output, ".go"):
		errs = append(errs, fmt.Errorf("output %q is not a .go file", c.Output))
	case strings.HasSuffix(c.Output, "_test.go"):
		errs = append(errs, fmt.Errorf("output %q is a test file", c.Output))
	case filepath.Base(c.Output) != c.Output:
		errs = append(errs, fmt.Errorf("output %q must be a file name, not a path", c.Output))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency %d is negative", c.Concurrency))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for _, tag := range c.BuildTags {
		if tag == "" || strings.ContainsAny(tag, ", \t") {
			errs = append(errs, fmt.Errorf("invalid build tag %q", tag))
		}
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
