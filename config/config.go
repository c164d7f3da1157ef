// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies

// Package config holds tsmap-recover settings. Values come from defaults,
// then an optional TOML or YAML file, then command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tsmap-recover.safepic.fr/tsmap"
)

// ErrInvalid reports a configuration value out of range.
var ErrInvalid = errors.New("invalid config")

// Config is the full set of settings.
type Config struct {
	Out         string `toml:"out" yaml:"out"`
	Beautify    bool   `toml:"beautify" yaml:"beautify"`
	EOL         string `toml:"eol" yaml:"eol"`
	Anchor      bool   `toml:"anchor" yaml:"anchor"`
	Concurrency int    `toml:"concurrency" yaml:"concurrency"`
	Verbose     bool   `toml:"verbose" yaml:"verbose"`

	Crawl Crawl `toml:"crawl" yaml:"crawl"`
}

// Crawl holds crawl-only settings.
type Crawl struct {
	Out            string  `toml:"out" yaml:"out"`
	Concurrency    int     `toml:"concurrency" yaml:"concurrency"`
	UserAgent      string  `toml:"user_agent" yaml:"user_agent"`
	Proxy          string  `toml:"proxy" yaml:"proxy"`
	Insecure       bool    `toml:"insecure" yaml:"insecure"`
	SaveJS         bool    `toml:"save_js" yaml:"save_js"`
	SaveMap        bool    `toml:"save_map" yaml:"save_map"`
	Rate           float64 `toml:"rate" yaml:"rate"`
	TimeoutSeconds int     `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Out:         "extracted_sources",
		Concurrency: 1,
		Crawl: Crawl{
			Out:            "recovered",
			Concurrency:    4,
			UserAgent:      "tsmap-crawl/1.0",
			TimeoutSeconds: 25,
		},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .toml, .yaml or .yml. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		// an empty file decodes to io.EOF; keep the defaults
		if err := dec.Decode(&cfg); err != nil && len(bytes.TrimSpace(raw)) > 0 {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("%w: unsupported config format %q", ErrInvalid, filepath.Ext(path))
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if !tsmap.ValidEOL(c.EOL) {
		return fmt.Errorf("%w: eol must be unix or dos, got %q", ErrInvalid, c.EOL)
	}
	if c.Concurrency < 0 || c.Crawl.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalid)
	}
	if c.Crawl.Rate < 0 {
		return fmt.Errorf("%w: rate must not be negative", ErrInvalid)
	}
	if c.Crawl.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalid)
	}
	return nil
}

// Timeout is the crawl HTTP timeout.
func (c Crawl) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
