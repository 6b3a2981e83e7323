// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/claw/cmd/claw/cli"
	"github.com/bureau-foundation/claw/lib/asset"
	"github.com/bureau-foundation/claw/lib/claw"
	"github.com/bureau-foundation/claw/lib/config"
	"github.com/bureau-foundation/claw/lib/filestore"
	"github.com/bureau-foundation/claw/lib/romimage"
)

// imageFlags are the flags every image command accepts.
type imageFlags struct {
	ConfigPath string
	ImagePath  string
}

// AddFlags registers --config and --image.
func (f *imageFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigPath, "config", "", "configuration file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&f.ImagePath, "image", "", "ROM image file (default: image.path from the configuration)")
}

// loadConfig reads --config, else $CLAW_CONFIG, else the defaults, and
// applies --image on top.
func (f *imageFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case f.ConfigPath != "":
		cfg, err = config.LoadFile(f.ConfigPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if f.ImagePath != "" {
		cfg.Image.Path = f.ImagePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session is an open image with its store and library.
type session struct {
	config  *config.Config
	logger  *slog.Logger
	image   *romimage.Image
	store   *filestore.Store
	library *asset.Library
}

// newLogger builds the command logger at the configured level.
func newLogger(cfg *config.Config, command string) *slog.Logger {
	level, _ := cfg.LogLevel()
	return cli.NewCommandLogger(level).With("command", command)
}

// open loads the configuration and opens the image, its file store and
// its catalog. format overrides the configured write format when set.
func (f *imageFlags) open(command string, readOnly bool, format string) (*session, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	writeFormat, err := resolveFormat(cfg, format)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, command)

	image, err := romimage.Open(cfg.Image.Path, romimage.Options{ReadOnly: readOnly, Logger: logger})
	if err != nil {
		return nil, err
	}
	store, err := filestore.Open(image.Arena(), filestore.Options{Logger: logger})
	if err != nil {
		image.Close()
		return nil, fmt.Errorf("opening file store in %s: %w", cfg.Image.Path, err)
	}
	library, err := asset.OpenLibrary(store, asset.Options{
		Format:            writeFormat,
		AllowTypeMismatch: !cfg.Codec.StrictTypeNames,
		Logger:            logger,
	})
	if err != nil {
		image.Close()
		return nil, fmt.Errorf("opening catalog in %s: %w", cfg.Image.Path, err)
	}

	return &session{config: cfg, logger: logger, image: image, store: store, library: library}, nil
}

// commit persists the inode table and syncs the image file.
func (s *session) commit() error {
	if err := s.store.Flush(); err != nil {
		return fmt.Errorf("writing inode table: %w", err)
	}
	if err := s.image.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", s.image.Path(), err)
	}
	return nil
}

func (s *session) Close() error {
	return s.image.Close()
}

// resolveFormat returns the --format override or the configured format.
func resolveFormat(cfg *config.Config, override string) (claw.Format, error) {
	if override != "" {
		return claw.ParseFormat(override)
	}
	return cfg.Format()
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, usage string, n int) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

// kindOf returns the registered kind for a document header, refusing
// the catalog, which only the library writes.
func kindOf(header claw.Header) (asset.Kind, error) {
	kind, ok := asset.KindByTypeName(header.TypeName)
	if !ok || kind.FileType == asset.TypeCatalog {
		return asset.Kind{}, fmt.Errorf("%q: %w", header.TypeName, asset.ErrUnregisteredType)
	}
	return kind, nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	return os.ReadFile(path)
}

// writeOutput writes data to path, or to stdout for "" and "-". Files
// are written to a temporary name, synced and renamed into place, so an
// interrupted command never leaves a truncated document behind.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporaryPath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}
	return nil
}
