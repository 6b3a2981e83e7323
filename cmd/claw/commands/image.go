// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/claw/cmd/claw/cli"
	"github.com/bureau-foundation/claw/lib/asset"
	"github.com/bureau-foundation/claw/lib/config"
	"github.com/bureau-foundation/claw/lib/filestore"
	"github.com/bureau-foundation/claw/lib/romimage"
)

func formatCommand(stdout io.Writer) *cli.Command {
	var (
		flags imageFlags
		size  string
		force bool
	)
	return &cli.Command{
		Name:    "format",
		Summary: "Create an empty image",
		Usage:   "claw format [flags]",
		Description: `Create a ROM image holding an empty arena and an empty inode table.

The arena size defaults to image.arena_size from the configuration
(4 MiB without one). An existing file is only replaced with --force.`,
		Examples: []cli.Example{
			{
				Description: "Create a 1 MiB image",
				Command:     "claw format --image forest.rom --size 1MiB",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("format", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			flagSet.StringVar(&size, "size", "", "arena size, e.g. 512KiB or 4MB (default: image.arena_size)")
			flagSet.BoolVar(&force, "force", false, "replace an existing file")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw format [flags]", 0); err != nil {
				return err
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			arenaSize := cfg.Image.ArenaSize
			if size != "" {
				if arenaSize, err = config.ParseByteSize(size); err != nil {
					return err
				}
			}
			path := cfg.Image.Path
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", path)
			}

			logger := newLogger(cfg, "format")
			image, err := romimage.Create(path, int(arenaSize), romimage.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer image.Close()

			store, err := filestore.New(image.Arena(), filestore.Options{Logger: logger})
			if err != nil {
				return err
			}
			if err := store.Flush(); err != nil {
				return fmt.Errorf("writing inode table: %w", err)
			}
			if err := image.Sync(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "formatted %s: %s arena, %s free\n", path,
				humanize.IBytes(uint64(store.Size())), humanize.IBytes(uint64(store.Available())))
			return nil
		},
	}
}

func resizeCommand(stdout io.Writer) *cli.Command {
	var flags imageFlags
	return &cli.Command{
		Name:    "resize",
		Summary: "Grow or shrink an image's arena",
		Usage:   "claw resize <size> [flags]",
		Description: `Change the arena size and the file length to match.

Shrinking fails if stored data extends past the new size; use "claw
trim" to shrink to the smallest size that keeps everything.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("resize", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw resize <size> [flags]", 1); err != nil {
				return err
			}
			size, err := config.ParseByteSize(args[0])
			if err != nil {
				return err
			}
			s, err := flags.open("resize", false, "")
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.Flush(); err != nil {
				return err
			}
			before := s.image.Arena().Size()
			if err := s.image.Resize(int(size)); err != nil {
				return err
			}
			if err := s.image.Sync(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "resized %s: %s -> %s\n", s.image.Path(),
				humanize.IBytes(uint64(before)), humanize.IBytes(uint64(s.image.Arena().Size())))
			return nil
		},
	}
}

func trimCommand(stdout io.Writer) *cli.Command {
	var flags imageFlags
	return &cli.Command{
		Name:    "trim",
		Summary: "Compact an image and drop its free space",
		Usage:   "claw trim [flags]",
		Description: `Move every live allocation to the front of the arena, then shrink the
arena and the file to the end of the last one.

Content is moved in place, so an interrupted trim can leave a damaged
image. A trimmed image has no room for new assets until it is grown
again with "claw resize".`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("trim", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw trim [flags]", 0); err != nil {
				return err
			}
			s, err := flags.open("trim", false, "")
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.Compact(); err != nil {
				return err
			}
			before := s.image.FileSize()
			if err := s.image.Trim(); err != nil {
				return err
			}
			if err := s.image.Sync(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "trimmed %s: %s -> %s\n", s.image.Path(),
				humanize.IBytes(uint64(before)), humanize.IBytes(uint64(s.image.FileSize())))
			return nil
		},
	}
}

func sealCommand(stdout io.Writer) *cli.Command {
	var flags imageFlags
	return &cli.Command{
		Name:    "seal",
		Summary: "Record a digest of an image's arena",
		Usage:   "claw seal [flags]",
		Description: `Hash the arena with BLAKE3 and record the digest in the image header.

"claw verify" checks the digest. Any later change to the image
invalidates the seal until the image is sealed again.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw seal [flags]", 0); err != nil {
				return err
			}
			s, err := flags.open("seal", false, "")
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.Flush(); err != nil {
				return err
			}
			digest, err := s.image.Seal()
			if err != nil {
				return err
			}
			if err := s.image.Sync(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s  %s\n", digest, s.image.Path())
			return nil
		},
	}
}

// check is one line of "claw verify" output.
type check struct {
	name string
	err  error
	note string
}

func verifyCommand(stdout io.Writer) *cli.Command {
	var (
		flags       imageFlags
		requireSeal bool
	)
	return &cli.Command{
		Name:    "verify",
		Summary: "Check an image's structure, catalog and seal",
		Usage:   "claw verify [flags]",
		Description: `Run every consistency check on an image without modifying it:

  arena     node headers tile the region and the free list is intact
  inodes    the inode table decodes and points at live allocations
  catalog   the catalog decodes and names only existing inodes
  assets    every cataloged asset decodes as its registered kind
  seal      the recorded digest matches the arena

An unsealed image passes unless --require-seal is given. Exits 1 if
any check fails.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			flagSet.BoolVar(&requireSeal, "require-seal", false, "fail if the image is not sealed")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw verify [flags]", 0); err != nil {
				return err
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			image, err := romimage.Open(cfg.Image.Path, romimage.Options{ReadOnly: true, Logger: newLogger(cfg, "verify")})
			if err != nil {
				return err
			}
			defer image.Close()

			checks := runChecks(image, cfg, requireSeal)
			tw := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			failed := false
			for _, c := range checks {
				result := "ok"
				if c.err != nil {
					result = "FAIL"
					failed = true
				}
				detail := c.note
				if c.err != nil {
					detail = c.err.Error()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.name, result, detail)
			}
			tw.Flush()
			if failed {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// runChecks runs the verify checks in dependency order, skipping the
// ones whose inputs failed.
func runChecks(image *romimage.Image, cfg *config.Config, requireSeal bool) []check {
	var checks []check
	a := image.Arena()

	arenaCheck := check{name: "arena", err: a.Verify()}
	if arenaCheck.err == nil {
		arenaCheck.note = fmt.Sprintf("%s, %s free", humanize.IBytes(uint64(a.Size())), humanize.IBytes(uint64(a.Available())))
	}
	checks = append(checks, arenaCheck)

	sealCheck := check{name: "seal"}
	switch err := image.Verify(); {
	case errors.Is(err, romimage.ErrNotSealed):
		sealCheck.note = "not sealed"
		if requireSeal {
			sealCheck.err = err
		}
	case err != nil:
		sealCheck.err = err
	default:
		sealCheck.note = image.Header().Digest.String()
	}

	if arenaCheck.err != nil {
		return append(checks, sealCheck)
	}

	store, err := filestore.Open(a, filestore.Options{})
	inodeCheck := check{name: "inodes", err: err}
	if err == nil {
		inodeCheck.note = fmt.Sprintf("%d files", store.Len())
	}
	checks = append(checks, inodeCheck)
	if err != nil {
		return append(checks, sealCheck)
	}

	library, err := asset.OpenLibrary(store, asset.Options{AllowTypeMismatch: !cfg.Codec.StrictTypeNames})
	catalogCheck := check{name: "catalog", err: err}
	if err == nil {
		for _, entry := range library.Catalog() {
			if _, statErr := store.Stat(entry.Inode); statErr != nil {
				catalogCheck.err = fmt.Errorf("%s: %w", entry.Name, statErr)
				break
			}
		}
		catalogCheck.note = fmt.Sprintf("%d names", len(library.Catalog()))
	}
	checks = append(checks, catalogCheck)
	if catalogCheck.err != nil {
		return append(checks, sealCheck)
	}

	assetCheck := check{name: "assets"}
	for _, entry := range library.Catalog() {
		kind, ok := asset.KindByType(entry.Type)
		if !ok {
			assetCheck.err = fmt.Errorf("%s: file type %d: %w", entry.Name, entry.Type, asset.ErrUnregisteredType)
			break
		}
		if err := library.Get(entry.Name, kind.New()); err != nil {
			assetCheck.err = err
			break
		}
	}
	if assetCheck.err == nil {
		assetCheck.note = fmt.Sprintf("%d decoded", len(library.Catalog()))
	}
	checks = append(checks, assetCheck)

	return append(checks, sealCheck)
}
