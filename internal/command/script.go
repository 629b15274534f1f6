package command

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joeycumines/whatsdemo/internal/chat"
	"github.com/joeycumines/whatsdemo/internal/config"
)

// scriptFlags are shared by the commands that edit the saved script.
type scriptFlags struct {
	statePath string
}

func (f *scriptFlags) setup(fs *flag.FlagSet) {
	fs.StringVar(&f.statePath, "state", "", "State file to edit (overrides config state.file)")
}

// ImportCommand replaces the saved script with the contents of a file.
type ImportCommand struct {
	*BaseCommand
	config *config.Config
	stdin  io.Reader
	flags  scriptFlags
	format string
}

// NewImportCommand creates a new import command. "-" reads from stdin.
func NewImportCommand(cfg *config.Config, stdin io.Reader) *ImportCommand {
	return &ImportCommand{
		BaseCommand: NewBaseCommand(
			"import",
			"Replace the saved conversation with a JSON, YAML or TOML file",
			"import [options] <file|->",
		),
		config: cfg,
		stdin:  stdin,
	}
}

// SetupFlags configures the flags for the import command.
func (c *ImportCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags.setup(fs)
	fs.StringVar(&c.format, "format", "", "Input format when reading stdin: json, yaml or toml")
}

// Execute imports the file.
func (c *ImportCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintf(stderr, "Usage: whatsdemo %s\n", c.Usage())
		return fmt.Errorf("expected exactly one file")
	}

	name := args[0]
	var data []byte
	var err error
	if name == "-" {
		name = "stdin." + c.format
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	script, err := chat.ParseImport(name, data)
	if err != nil {
		var importErr *chat.ImportError
		if errors.As(err, &importErr) && importErr.Err != nil && importErr.Err.Error() != importErr.Message {
			_, _ = fmt.Fprintf(stderr, "%s: %v\n", importErr.Message, importErr.Err)
		}
		return err
	}

	store, err := openStore(c.config, c.Name(), c.flags.statePath, nil)
	if err != nil {
		return err
	}
	if err := store.Save(script); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Imported %d messages for %q into %s\n", len(script.Messages), script.Profile.DisplayName(), store.Path)
	return nil
}

// ExampleCommand replaces the saved script with the built-in example.
type ExampleCommand struct {
	*BaseCommand
	config *config.Config
	flags  scriptFlags
	print  bool
}

// NewExampleCommand creates a new example command.
func NewExampleCommand(cfg *config.Config) *ExampleCommand {
	return &ExampleCommand{
		BaseCommand: NewBaseCommand(
			"example",
			"Load the example conversation",
			"example [options]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the example command.
func (c *ExampleCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags.setup(fs)
	fs.BoolVar(&c.print, "print", false, "Print the example as JSON instead of saving it")
}

// Execute saves or prints the example.
func (c *ExampleCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	script := chat.ExampleScript()
	if c.print {
		data, err := json.MarshalIndent(script, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "%s\n", data)
		return nil
	}

	store, err := openStore(c.config, c.Name(), c.flags.statePath, nil)
	if err != nil {
		return err
	}
	if err := store.Save(script); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Loaded the example (%d messages) into %s\n", len(script.Messages), store.Path)
	return nil
}

// MessageCommand lists and edits the messages of the saved script.
type MessageCommand struct {
	*BaseCommand
	config *config.Config
	flags  scriptFlags
}

// NewMessageCommand creates a new message command.
func NewMessageCommand(cfg *config.Config) *MessageCommand {
	return &MessageCommand{
		BaseCommand: NewBaseCommand(
			"message",
			"List, add, delete or move messages of the saved conversation",
			"message [options] list | add <user|agent> <text...> | delete <n> | up <n> | down <n> | profile <name> [avatar-url]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the message command.
func (c *MessageCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags.setup(fs)
}

// Execute runs one edit. Positions are 1-based, as listed.
func (c *MessageCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	store, err := openStore(c.config, c.Name(), c.flags.statePath, nil)
	if err != nil {
		return err
	}
	script := loadScript(store)

	switch sub, rest := args[0], args[1:]; sub {
	case "list", "ls":
		printScript(stdout, script)
		return nil

	case "add":
		if len(rest) < 2 {
			return fmt.Errorf("usage: message add <user|agent> <text...>")
		}
		role := chat.Role(strings.ToLower(rest[0]))
		if !role.Valid() {
			return fmt.Errorf("invalid role %q: must be user or agent", rest[0])
		}
		text := strings.TrimSpace(strings.Join(rest[1:], " "))
		if text == "" {
			return fmt.Errorf("message text must not be empty")
		}
		script.Messages = chat.Append(script.Messages, chat.Message{From: role, Text: text})

	case "delete", "rm":
		i, err := messageIndex(rest, script)
		if err != nil {
			return err
		}
		script.Messages = chat.Delete(script.Messages, i)

	case "up", "down":
		i, err := messageIndex(rest, script)
		if err != nil {
			return err
		}
		dir := chat.Up
		if sub == "down" {
			dir = chat.Down
		}
		script.Messages = chat.Move(script.Messages, i, dir)

	case "profile":
		if len(rest) < 1 || strings.TrimSpace(rest[0]) == "" {
			return fmt.Errorf("usage: message profile <name> [avatar-url]")
		}
		script.Profile.Name = strings.TrimSpace(rest[0])
		if len(rest) > 1 {
			script.Profile.AvatarURL = strings.TrimSpace(rest[1])
		}

	default:
		_, _ = fmt.Fprintf(stderr, "Usage: whatsdemo %s\n", c.Usage())
		return fmt.Errorf("unknown subcommand: %s", sub)
	}

	if err := store.Save(script); err != nil {
		return err
	}
	printScript(stdout, script)
	return nil
}

// messageIndex parses the 1-based position in args into a 0-based index.
func messageIndex(args []string, script chat.Script) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one message position")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(script.Messages) {
		return 0, fmt.Errorf("invalid message position %q: have %d messages", args[0], len(script.Messages))
	}
	return n - 1, nil
}

func printScript(w io.Writer, script chat.Script) {
	_, _ = fmt.Fprintf(w, "%s (%d messages)\n", script.Profile.DisplayName(), len(script.Messages))
	for i, m := range script.Messages {
		_, _ = fmt.Fprintf(w, "%3d  %-5s  %s\n", i+1, m.From, m.Text)
	}
}

