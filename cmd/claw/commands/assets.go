// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/claw/cmd/claw/cli"
	"github.com/bureau-foundation/claw/lib/arena"
	"github.com/bureau-foundation/claw/lib/asset"
	"github.com/bureau-foundation/claw/lib/claw"
	"github.com/bureau-foundation/claw/lib/filestore"
)

func putCommand(stdout io.Writer) *cli.Command {
	var (
		flags  imageFlags
		format string
	)
	return &cli.Command{
		Name:    "put",
		Summary: "Store a Claw document as a named asset",
		Usage:   "claw put <name> <file|-> [flags]",
		Description: `Decode a Claw document and store it in the image under a name.

The document's header selects the asset kind. It is re-encoded in
--format (default: codec.format from the configuration) before it is
stored, so an Organic file written by hand can be stored as Metal.
Storing under an existing name replaces that asset in place; every
alias made with "claw link" sees the new content.`,
		Examples: []cli.Example{
			{
				Description: "Store a hand-written palette in binary form",
				Command:     "claw put --image forest.rom --format metal forest palette.yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			flagSet.StringVar(&format, "format", "", "format to store the asset in: metal or organic")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw put <name> <file|-> [flags]", 2); err != nil {
				return err
			}
			name := args[0]
			if name == "" {
				return fmt.Errorf("asset name must not be empty")
			}
			data, err := readInput(args[1])
			if err != nil {
				return err
			}
			header, err := claw.ParseHeader(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			kind, err := kindOf(header)
			if err != nil {
				return err
			}

			s, err := flags.open("put", false, format)
			if err != nil {
				return err
			}
			defer s.Close()

			value := kind.New()
			if err := s.config.Decoder().Unmarshal(data, value); err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			id, err := s.library.Put(name, value)
			if err != nil {
				return err
			}
			if err := s.commit(); err != nil {
				return err
			}
			stat, err := s.store.Stat(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "stored %s: inode %d, %s, %s\n", name, id, kind.Name, humanize.IBytes(uint64(stat.Size)))
			return nil
		},
	}
}

func getCommand(stdout io.Writer) *cli.Command {
	var (
		flags  imageFlags
		format string
		output string
	)
	return &cli.Command{
		Name:    "get",
		Summary: "Print a stored asset as a Claw document",
		Usage:   "claw get <name> [flags]",
		Description: `Decode a stored asset and write it as a Claw document.

The document is written in --format (default: codec.format from the
configuration) to stdout, or to the file named by --output.`,
		Examples: []cli.Example{
			{
				Description: "Show a scene in readable form",
				Command:     "claw get --image forest.rom --format organic level-1",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			flagSet.StringVar(&format, "format", "", "format to write: metal or organic")
			flagSet.StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw get <name> [flags]", 1); err != nil {
				return err
			}
			s, err := flags.open("get", true, "")
			if err != nil {
				return err
			}
			defer s.Close()

			outputFormat, err := resolveFormat(s.config, format)
			if err != nil {
				return err
			}
			entry, err := s.library.Lookup(args[0])
			if err != nil {
				return err
			}
			kind, ok := asset.KindByType(entry.Type)
			if !ok {
				return fmt.Errorf("%s: file type %d: %w", entry.Name, entry.Type, asset.ErrUnregisteredType)
			}
			value := kind.New()
			if err := s.library.Get(entry.Name, value); err != nil {
				return err
			}
			data, err := claw.Marshal(value, outputFormat)
			if err != nil {
				return err
			}
			return writeOutput(stdout, output, data)
		},
	}
}

func statCommand(stdout io.Writer) *cli.Command {
	var flags imageFlags
	return &cli.Command{
		Name:    "stat",
		Summary: "Show an asset's inode",
		Usage:   "claw stat <name|#inode> [flags]",
		Description: `Show the inode behind a name, or behind an inode id written as #<id>.

The header line of the stored document is shown as well, so the
format and version of an asset can be checked without decoding it.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stat", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw stat <name|#inode> [flags]", 1); err != nil {
				return err
			}
			s, err := flags.open("stat", true, "")
			if err != nil {
				return err
			}
			defer s.Close()

			var names []string
			var id filestore.InodeID
			if rest, ok := strings.CutPrefix(args[0], "#"); ok {
				value, err := strconv.ParseUint(rest, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid inode %q", args[0])
				}
				id = filestore.InodeID(value)
			} else {
				entry, err := s.library.Lookup(args[0])
				if err != nil {
					return err
				}
				id = entry.Inode
			}
			for _, entry := range s.library.Catalog() {
				if entry.Inode == id {
					names = append(names, entry.Name)
				}
			}

			stat, err := s.store.Stat(id)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(stdout, 2, 0, 1, ' ', 0)
			fmt.Fprintf(tw, "inode:\t%d\n", stat.ID)
			fmt.Fprintf(tw, "names:\t%s\n", strings.Join(names, ", "))
			fmt.Fprintf(tw, "kind:\t%s\n", kindName(stat.Type))
			fmt.Fprintf(tw, "links:\t%d\n", stat.Links)
			fmt.Fprintf(tw, "size:\t%d (%s)\n", stat.Size, humanize.IBytes(uint64(stat.Size)))
			fmt.Fprintf(tw, "allocated:\t%d\n", arena.NodeSize(stat.Size))

			data, err := s.store.View(id)
			if err != nil {
				return err
			}
			if header, err := claw.ParseHeader(data); err == nil {
				fmt.Fprintf(tw, "document:\t%s %s %s\n", header.Format, header.TypeName, versionLabel(header.Version))
			}
			return tw.Flush()
		},
	}
}

func lsCommand(stdout io.Writer) *cli.Command {
	var (
		flags  imageFlags
		inodes bool
	)
	return &cli.Command{
		Name:    "ls",
		Summary: "List stored assets",
		Usage:   "claw ls [flags]",
		Description: `List the catalog: every asset name with its inode, kind and size.

With --inodes, list the inode table instead, including the catalog
itself and any inode no name refers to.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ls", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			flagSet.BoolVar(&inodes, "inodes", false, "list the inode table instead of names")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw ls [flags]", 0); err != nil {
				return err
			}
			s, err := flags.open("ls", true, "")
			if err != nil {
				return err
			}
			defer s.Close()

			tw := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			if inodes {
				fmt.Fprintf(tw, "INODE\tKIND\tLINKS\tSIZE\n")
				for _, stat := range s.store.List() {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", stat.ID, kindName(stat.Type), stat.Links, stat.Size)
				}
			} else {
				fmt.Fprintf(tw, "NAME\tINODE\tKIND\tSIZE\n")
				for _, entry := range s.library.Catalog() {
					size := "?"
					if stat, err := s.store.Stat(entry.Inode); err == nil {
						size = strconv.Itoa(stat.Size)
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", entry.Name, entry.Inode, kindName(entry.Type), size)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "\n%s used, %s free\n",
				humanize.IBytes(uint64(s.store.Size()-s.store.Available())), humanize.IBytes(uint64(s.store.Available())))
			return nil
		},
	}
}

func linkCommand(stdout io.Writer) *cli.Command {
	var flags imageFlags
	return &cli.Command{
		Name:    "link",
		Summary: "Give an asset a second name",
		Usage:   "claw link <name> <alias> [flags]",
		Description: `Add alias to the catalog pointing at the same inode as name.

The inode keeps its content until every name referring to it has
been removed with "claw unlink".`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("link", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw link <name> <alias> [flags]", 2); err != nil {
				return err
			}
			s, err := flags.open("link", false, "")
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.library.Link(args[0], args[1]); err != nil {
				return err
			}
			if err := s.commit(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "linked %s -> %s\n", args[1], args[0])
			return nil
		},
	}
}

func unlinkCommand(stdout io.Writer) *cli.Command {
	var flags imageFlags
	return &cli.Command{
		Name:    "unlink",
		Summary: "Remove an asset name",
		Usage:   "claw unlink <name> [flags]",
		Description: `Remove name from the catalog and drop its link on the inode.

The content is freed when no other name refers to the inode.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("unlink", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "claw unlink <name> [flags]", 1); err != nil {
				return err
			}
			s, err := flags.open("unlink", false, "")
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := s.library.Lookup(args[0])
			if err != nil {
				return err
			}
			if err := s.library.Remove(args[0]); err != nil {
				return err
			}
			if err := s.commit(); err != nil {
				return err
			}
			if _, err := s.store.Stat(entry.Inode); err != nil {
				fmt.Fprintf(stdout, "removed %s, freed inode %d\n", args[0], entry.Inode)
			} else {
				fmt.Fprintf(stdout, "removed %s, inode %d still linked\n", args[0], entry.Inode)
			}
			return nil
		},
	}
}

// kindName returns the short kind name for a file type.
func kindName(fileType filestore.FileType) string {
	if kind, ok := asset.KindByType(fileType); ok {
		return kind.Name
	}
	return fmt.Sprintf("type-%d", fileType)
}
