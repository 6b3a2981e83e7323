// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the command tree: either a group of
// subcommands or a runnable leaf.
type Command struct {
	// Name is what the user types ("put", "seal").
	Name string

	// Summary is the one-line entry in the parent's command list.
	Summary string

	// Description is the long help text.
	Description string

	// Usage overrides the synthesized usage line, e.g.
	// "claw put <name> <file|-> [flags]".
	Usage string

	// Group places the command under a heading in the parent's
	// command list. Commands without a group are listed first.
	Group string

	Examples []Example

	// Flags builds the command's flag set. It is called once per
	// parse, so every call must return a fresh set bound to the same
	// variables.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	// A command with Subcommands and no Run only dispatches.
	Run func(ctx context.Context, args []string) error

	parent *Command
}

// Example is one entry in the Examples section of the help output.
type Example struct {
	Description string
	Command     string
}

// Execute dispatches args down the tree and runs the selected command.
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(os.Stderr)
		return nil
	}
	if len(c.Subcommands) > 0 {
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			sub, err := c.find(args[0])
			if err != nil {
				return err
			}
			return sub.Execute(ctx, args[1:])
		}
		if c.Run == nil {
			c.PrintHelp(os.Stderr)
			if len(args) == 0 {
				return errors.New("subcommand required")
			}
			return fmt.Errorf("subcommand required (got flag %q)", args[0])
		}
	}

	args, err := c.parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		c.PrintHelp(os.Stderr)
		return nil
	}
	if err != nil {
		return err
	}
	if c.Run == nil {
		c.PrintHelp(os.Stderr)
		return fmt.Errorf("no action defined for %q", c.fullName())
	}
	return c.Run(ctx, args)
}

// find returns the subcommand called name, or an error naming the
// closest match.
func (c *Command) find(name string) (*Command, error) {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub, nil
		}
	}
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		return nil, fmt.Errorf("unknown command %q (did you mean %q?)%s", name, suggestion, c.helpHint())
	}
	return nil, fmt.Errorf("unknown command %q%s", name, c.helpHint())
}

// parseFlags returns the positional arguments. Parse errors carry a
// pointer to --help, and a suggestion when an unknown flag is close to
// a defined one.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	err := flagSet.Parse(args)
	if err == nil {
		return flagSet.Args(), nil
	}
	if errors.Is(err, pflag.ErrHelp) {
		return nil, err
	}
	message := err.Error()
	if strings.HasPrefix(message, "unknown") {
		// Suggest against a fresh set; the failed parse has already
		// written to the first one.
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			message += " (did you mean " + suggestion + "?)"
		}
	}
	return nil, fmt.Errorf("%s%s", message, c.helpHint())
}

func (c *Command) helpHint() string {
	return fmt.Sprintf("\n\nRun '%s --help' for usage.", c.fullName())
}

// PrintHelp writes the command's help text to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	switch {
	case c.Description != "":
		fmt.Fprintf(w, "%s\n\n", c.Description)
	case c.Summary != "":
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	usage := c.Usage
	switch {
	case usage != "":
	case len(c.Subcommands) > 0:
		usage = name + " <command> [flags]"
	default:
		usage = name + " [flags]"
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	c.printSubcommands(w)

	if c.Flags != nil {
		if flags := c.Flags().FlagUsages(); flags != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", flags)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description == "" {
				fmt.Fprintf(w, "  %s\n", example.Command)
				continue
			}
			fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// printSubcommands lists subcommands under their group headings, in
// the order each group first appears.
func (c *Command) printSubcommands(w io.Writer) {
	if len(c.Subcommands) == 0 {
		return
	}
	var groups []string
	members := make(map[string][]*Command)
	for _, sub := range c.Subcommands {
		if _, seen := members[sub.Group]; !seen {
			groups = append(groups, sub.Group)
		}
		members[sub.Group] = append(members[sub.Group], sub)
	}
	if _, ungrouped := members[""]; ungrouped && groups[0] != "" {
		groups = append([]string{""}, removeString(groups, "")...)
	}

	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	for _, group := range groups {
		heading := "Commands"
		if group != "" {
			heading = group
		}
		fmt.Fprintf(tw, "\n%s:\n", heading)
		for _, sub := range members[group] {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
	}
	tw.Flush()
}

func removeString(values []string, unwanted string) []string {
	var kept []string
	for _, value := range values {
		if value != unwanted {
			kept = append(kept, value)
		}
	}
	return kept
}

// fullName is the command path from the root, e.g. "claw put".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}
