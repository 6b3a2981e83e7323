// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/claw/lib/arena"
	"github.com/bureau-foundation/claw/lib/claw"
)

// EnvVar names the environment variable Load reads the config path
// from.
const EnvVar = "CLAW_CONFIG"

// Config is the configuration for the claw command.
type Config struct {
	// Image locates the ROM image commands operate on.
	Image ImageConfig `yaml:"image"`

	// Codec controls how assets are encoded and decoded.
	Codec CodecConfig `yaml:"codec"`

	// Log configures the command logger.
	Log LogConfig `yaml:"log"`

	// Mount configures "claw mount".
	Mount MountConfig `yaml:"mount"`
}

// ImageConfig locates the ROM image.
type ImageConfig struct {
	// Path is the image file. The --image flag overrides it.
	Path string `yaml:"path"`

	// ArenaSize is the arena size "claw format" creates images with.
	// Default: 4 MiB
	ArenaSize ByteSize `yaml:"arena_size"`
}

// CodecConfig controls asset encoding.
type CodecConfig struct {
	// Format is the Claw format new assets are written in: "metal" or
	// "organic" (or the header tags "M1" and "O1").
	// Default: metal
	Format string `yaml:"format"`

	// StrictTypeNames rejects assets whose header type name differs
	// from the type being decoded.
	// Default: true
	StrictTypeNames bool `yaml:"strict_type_names"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum level logged: debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`
}

// MountConfig configures the FUSE view.
type MountConfig struct {
	// Mountpoint is where "claw mount" mounts the image when no
	// argument is given.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`
}

// ByteSize is a size in bytes that unmarshals from either an integer
// or a human-readable string.
type ByteSize int64

// UnmarshalYAML accepts 1048576, "1048576", "1 MiB" and "1MB".
func (s *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	parsed, err := ParseByteSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

// MarshalYAML writes the size in IEC units.
func (s ByteSize) MarshalYAML() (any, error) {
	return s.String(), nil
}

// String formats the size in IEC units ("4.0 MiB").
func (s ByteSize) String() string {
	if s < 0 {
		return fmt.Sprintf("%d B", int64(s))
	}
	return humanize.IBytes(uint64(s))
}

// ParseByteSize parses a byte count with an optional SI or IEC unit.
func ParseByteSize(value string) (ByteSize, error) {
	parsed, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if parsed > 1<<62 {
		return 0, fmt.Errorf("size %q is too large", value)
	}
	return ByteSize(parsed), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Image: ImageConfig{
			Path:      "assets.rom",
			ArenaSize: 4 << 20,
		},
		Codec: CodecConfig{
			Format:          "metal",
			StrictTypeNames: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by CLAW_CONFIG. It
// fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your claw.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults and expands
// variables in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

// loadFile decodes one configuration file into c. Keys absent from the
// file keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Image.Path = expandVars(c.Image.Path, vars)
	c.Mount.Mountpoint = expandVars(c.Mount.Mountpoint, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Image.Path == "" {
		errs = append(errs, fmt.Errorf("image.path is required"))
	}
	if c.Image.ArenaSize < arena.MinSize {
		errs = append(errs, fmt.Errorf("image.arena_size %s is below the minimum of %d bytes", c.Image.ArenaSize, arena.MinSize))
	}
	if _, err := c.Format(); err != nil {
		errs = append(errs, fmt.Errorf("codec.format: %w", err))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Format returns the configured Claw format.
func (c *Config) Format() (claw.Format, error) {
	return claw.ParseFormat(c.Codec.Format)
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

// Decoder returns the Claw decoder the codec settings describe.
func (c *Config) Decoder() claw.Decoder {
	return claw.Decoder{AllowTypeMismatch: !c.Codec.StrictTypeNames}
}
