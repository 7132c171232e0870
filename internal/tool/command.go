// Package tool dispatches the subcommands of a command line tool.
package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

type Command struct {
	Name        string
	Description string // one line, shown in the command list
	Help        string // full usage, shown by "help <command>" and -h
	Flags       *pflag.FlagSet
	Fn          func(ctx context.Context, args []string) error
}

// ExitError makes Run exit with Code without printing anything more. The
// command has already reported what went wrong.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Run runs the command named by args[0] with the remaining arguments and
// returns the process exit code.
func Run(ctx context.Context, tool string, commands map[string]*Command, args []string, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr, tool, commands)
		return 2
	}

	name, args := args[0], args[1:]
	if name == "help" || name == "-h" || name == "--help" {
		if len(args) > 0 {
			if cmd, ok := commands[args[0]]; ok {
				_, _ = fmt.Fprintln(stderr, cmd.Help)
				return 0
			}
		}
		usage(stderr, tool, commands)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "%s: unknown command %q\n\n", tool, name)
		usage(stderr, tool, commands)
		return 2
	}

	if cmd.Flags != nil {
		cmd.Flags.SetOutput(stderr)
		cmd.Flags.Usage = func() { _, _ = fmt.Fprintln(stderr, cmd.Help) }
		if err := cmd.Flags.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return 0
			}
			_, _ = fmt.Fprintf(stderr, "%s %s: %v\n", tool, name, err)
			return 2
		}
		args = cmd.Flags.Args()
	}

	if err := cmd.Fn(ctx, args); err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		_, _ = fmt.Fprintf(stderr, "%s %s: %v\n", tool, name, err)
		return 1
	}
	return 0
}

func usage(w io.Writer, tool string, commands map[string]*Command) {
	names := make([]string, 0, len(commands))
	width := 0
	for name := range commands {
		names = append(names, name)
		width = max(width, len(name))
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "USAGE\n\n  %s <command> [arguments]\n\nCOMMANDS\n\n", tool)
	for _, name := range names {
		fmt.Fprintf(&b, "  %-*s  %s\n", width, name, commands[name].Description)
	}
	fmt.Fprintf(&b, "\nUse \"%s help <command>\" for more information about a command.\n", tool)
	_, _ = io.WriteString(w, b.String())
}
