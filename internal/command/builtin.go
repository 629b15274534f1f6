package command

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
)

var errUnexpectedArgs = errors.New("unexpected arguments")

// rejectArgs fails commands that take no positional arguments.
func rejectArgs(args []string, stderr io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
	return errUnexpectedArgs
}

// HelpCommand lists the registered commands, or describes one of them.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand("help", "Display help information for commands", "help [command]"),
		registry:    registry,
	}
}

func (c *HelpCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		c.overview(stdout)
		return nil
	}
	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Command: %s\nDescription: %s\nUsage: whatsdemo %s\n",
		cmd.Name(), cmd.Description(), cmd.Usage())
	if flags := flagDefaults(cmd); flags != "" {
		_, _ = fmt.Fprintf(stdout, "\nFlags:\n%s", flags)
	}
	return nil
}

func (c *HelpCommand) overview(w io.Writer) {
	_, _ = fmt.Fprint(w, "whatsdemo - replay a scripted chat on a phone mockup and record it\n\n"+
		"Usage: whatsdemo <command> [options] [args...]\n\n"+
		"Available commands:\n")
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, name := range c.registry.List() {
		if cmd, err := c.registry.Get(name); err == nil {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", name, cmd.Description())
		}
	}
	_ = tw.Flush()
	_, _ = fmt.Fprint(w, "\nRun 'whatsdemo help <command>' to see the flags of a command.\n")
}

// flagDefaults renders the flags cmd declares, or "" when it has none.
func flagDefaults(cmd Command) string {
	var buf bytes.Buffer
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(&buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	return buf.String()
}

// VersionCommand prints the build version.
type VersionCommand struct {
	*BaseCommand
	version string
}

func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand("version", "Display version information", "version"),
		version:     version,
	}
}

func (c *VersionCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "whatsdemo version %s\n", c.version)
	return nil
}
