// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/claw/cmd/claw/cli"
	storefuse "github.com/bureau-foundation/claw/lib/filestore/fuse"
)

func mountCommand(stdout io.Writer) *cli.Command {
	var (
		flags      imageFlags
		allowOther bool
	)
	return &cli.Command{
		Name:    "mount",
		Summary: "Mount an image's inodes as a read-only directory",
		Usage:   "claw mount [mountpoint] [flags]",
		Description: `Expose every live inode of the image as a read-only file named by
its decimal id. The mountpoint defaults to mount.mountpoint from the
configuration.

The command runs until interrupted, then unmounts. The image is
opened read-only; nothing written while it is mounted is visible.`,
		Examples: []cli.Example{
			{
				Description: "Inspect raw documents with ordinary tools",
				Command:     "claw mount --image forest.rom /tmp/forest",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("mount", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			flagSet.BoolVar(&allowOther, "allow-other", false, "let other users read the mount (needs user_allow_other)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: claw mount [mountpoint] [flags]")
			}
			s, err := flags.open("mount", true, "")
			if err != nil {
				return err
			}
			defer s.Close()

			mountpoint := s.config.Mount.Mountpoint
			if len(args) == 1 {
				mountpoint = args[0]
			}
			if mountpoint == "" {
				return fmt.Errorf("no mountpoint: pass one or set mount.mountpoint in the configuration")
			}

			var mu sync.Mutex
			server, err := storefuse.Mount(storefuse.Options{
				Mountpoint: mountpoint,
				Store:      s.store,
				Mutex:      &mu,
				AllowOther: allowOther || s.config.Mount.AllowOther,
				Logger:     s.logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "mounted %s at %s\n", s.image.Path(), mountpoint)

			<-ctx.Done()
			if err := server.Unmount(); err != nil {
				s.logger.Error("failed to unmount FUSE filesystem", "error", err)
				return fmt.Errorf("unmounting %s: %w", mountpoint, err)
			}
			s.logger.Info("FUSE filesystem unmounted", "mountpoint", mountpoint)
			return nil
		},
	}
}
