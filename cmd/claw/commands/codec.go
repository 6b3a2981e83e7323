// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/claw/cmd/claw/cli"
	"github.com/bureau-foundation/claw/lib/asset"
	"github.com/bureau-foundation/claw/lib/claw"
	"github.com/bureau-foundation/claw/lib/model"
)

func headerCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "header",
		Summary: "Show the header of a Claw document",
		Usage:   "claw header <file|->",
		Description: `Parse the header of a Claw document and print its fields.

Only the header is read; the payload is not decoded, so this works
for documents of types this build does not know.`,
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw header <file|->", 1); err != nil {
				return err
			}
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			header, err := claw.ParseHeader(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			known := "no"
			if _, ok := asset.KindByTypeName(header.TypeName); ok {
				known = "yes"
			}
			tw := tabwriter.NewWriter(stdout, 2, 0, 1, ' ', 0)
			fmt.Fprintf(tw, "format:\t%s (%s)\n", header.Format, header.Format.Name())
			fmt.Fprintf(tw, "type:\t%s\n", header.TypeName)
			fmt.Fprintf(tw, "registered:\t%s\n", known)
			fmt.Fprintf(tw, "version:\t%s\n", versionLabel(header.Version))
			fmt.Fprintf(tw, "payload:\t%d bytes at offset %d\n", len(data)-header.PayloadOffset, header.PayloadOffset)
			return tw.Flush()
		},
	}
}

func convertCommand(stdout io.Writer) *cli.Command {
	var (
		flags  imageFlags
		format string
	)
	return &cli.Command{
		Name:    "convert",
		Summary: "Re-encode a Claw document in another format",
		Usage:   "claw convert <in|-> <out|-> [flags]",
		Description: `Decode a Claw document and write it in another format.

Without --format, Metal input becomes Organic and Organic input becomes
Metal. The document's type must be registered with this build. Type
name checking follows codec.strict_type_names in the configuration.`,
		Examples: []cli.Example{
			{
				Description: "Turn a binary scene into editable YAML",
				Command:     "claw convert level-1.claw level-1.yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("convert", pflag.ContinueOnError)
			flagSet.StringVar(&flags.ConfigPath, "config", "", "configuration file")
			flagSet.StringVar(&format, "format", "", "output format: metal or organic")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw convert <in|-> <out|-> [flags]", 2); err != nil {
				return err
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			header, err := claw.ParseHeader(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			kind, ok := asset.KindByTypeName(header.TypeName)
			if !ok {
				return fmt.Errorf("%s: %q: %w", args[0], header.TypeName, asset.ErrUnregisteredType)
			}

			outputFormat := claw.Metal
			if header.Format == claw.Metal {
				outputFormat = claw.Organic
			}
			if format != "" {
				if outputFormat, err = claw.ParseFormat(format); err != nil {
					return err
				}
			}

			value := kind.New()
			if err := cfg.Decoder().Unmarshal(data, value); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			encoded, err := claw.Marshal(value, outputFormat)
			if err != nil {
				return err
			}
			return writeOutput(stdout, args[1], encoded)
		},
	}
}

func versionLabel(version int) string {
	if version == model.Unversioned {
		return "unversioned"
	}
	return "v" + strconv.Itoa(version)
}
