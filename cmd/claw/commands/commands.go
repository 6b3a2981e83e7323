// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the claw command tree.
//
// Image commands (format, put, get, stat, ls, link, unlink, resize,
// trim, seal, verify, mount) open the ROM image named by --image or by
// image.path in the configuration file, run one operation, persist the
// inode table and close the image. Document commands (header, convert)
// work on standalone Claw files and never touch an image.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/claw/cmd/claw/cli"
	"github.com/bureau-foundation/claw/lib/version"
)

// Root builds and returns the complete claw command tree. Command
// output is written to stdout; diagnostics go to the logger on stderr.
func Root(stdout io.Writer) *cli.Command {
	imageCommands := []*cli.Command{
		formatCommand(stdout),
		putCommand(stdout),
		getCommand(stdout),
		statCommand(stdout),
		lsCommand(stdout),
		linkCommand(stdout),
		unlinkCommand(stdout),
		resizeCommand(stdout),
		trimCommand(stdout),
		sealCommand(stdout),
		verifyCommand(stdout),
		mountCommand(stdout),
	}
	documentCommands := []*cli.Command{
		headerCommand(stdout),
		convertCommand(stdout),
	}
	for _, command := range imageCommands {
		command.Group = "Image commands"
	}
	for _, command := range documentCommands {
		command.Group = "Document commands"
	}

	subcommands := append(imageCommands, documentCommands...)
	subcommands = append(subcommands, versionCommand(stdout))
	return &cli.Command{
		Name: "claw",
		Description: `claw: build and inspect asset ROM images.

A ROM image is a single file holding a relocatable arena. Assets
(palettes, tile sheets, scenes) are stored in it as Claw documents,
either compact binary (Metal, M1) or readable YAML (Organic, O1),
and found by name through a catalog.`,
		Subcommands: subcommands,
		Examples: []cli.Example{
			{
				Description: "Create an image and store a palette in it",
				Command:     "claw format --image forest.rom && claw put --image forest.rom forest palette.yaml",
			},
			{
				Description: "Shrink and seal an image before shipping it",
				Command:     "claw trim --image forest.rom && claw seal --image forest.rom",
			},
		},
	}
}

func versionCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print the build version",
		Usage:   "claw version",
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw version", 0); err != nil {
				return err
			}
			fmt.Fprintln(stdout, version.Full())
			return nil
		},
	}
}
