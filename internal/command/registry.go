package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Registry manages the collection of available commands.
type Registry struct {
	commands map[string]Command
	aliases  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a command to the registry, replacing any command of the
// same name.
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// Alias makes alias resolve to the command called name.
func (r *Registry) Alias(alias, name string) {
	r.aliases[alias] = name
}

// Get returns a command by name or alias.
func (r *Registry) Get(name string) (Command, error) {
	if cmd, exists := r.commands[name]; exists {
		return cmd, nil
	}
	if target, ok := r.aliases[name]; ok {
		if cmd, exists := r.commands[target]; exists {
			return cmd, nil
		}
	}
	return nil, fmt.Errorf("command not found: %s", name)
}

// List returns the names of all registered commands, sorted.
func (r *Registry) List() []string {
	return slices.Sorted(maps.Keys(r.commands))
}

// Run looks up name, parses its flags from args and executes it. Flag
// errors are reported on stderr and returned.
func (r *Registry) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd, err := r.Get(name)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		_, _ = fmt.Fprintln(stderr, "Use 'whatsdemo help' to see available commands.")
		return err
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: whatsdemo %s\n", cmd.Usage())
		_, _ = fmt.Fprintf(stderr, "\n%s\n\n", cmd.Description())
		_, _ = fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	cmd.SetupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return cmd.Execute(ctx, fs.Args(), stdout, stderr)
}
