package command

import (
	"context"
	"flag"
	"io"
)

// Command is one whatsdemo subcommand. The Registry parses flags declared in
// SetupFlags and passes the remaining positional arguments to Execute.
type Command interface {
	Name() string
	// Description is the one-line summary shown by "whatsdemo help".
	Description() string
	Usage() string
	SetupFlags(fs *flag.FlagSet)
	// Execute runs the command. ctx is cancelled on SIGINT and SIGTERM.
	Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

// BaseCommand supplies the descriptive half of Command for embedding.
type BaseCommand struct {
	name, description, usage string
}

func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{name: name, description: description, usage: usage}
}

func (c *BaseCommand) Name() string        { return c.name }
func (c *BaseCommand) Description() string { return c.description }
func (c *BaseCommand) Usage() string       { return c.usage }

// SetupFlags declares no flags.
func (c *BaseCommand) SetupFlags(*flag.FlagSet) {}
