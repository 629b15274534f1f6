package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// messageSubcommands are completed after "message".
var messageSubcommands = []string{"list", "add", "delete", "rm", "up", "down", "profile"}

// CompletionCommand prints a completion script for bash, zsh or fish. The
// command list comes from the registry, so it never goes stale.
type CompletionCommand struct {
	*BaseCommand
	registry *Registry
}

func NewCompletionCommand(registry *Registry) *CompletionCommand {
	return &CompletionCommand{
		BaseCommand: NewBaseCommand("completion", "Generate shell completion scripts", "completion [bash|zsh|fish]"),
		registry:    registry,
	}
}

func (c *CompletionCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "Too many arguments: %v\nUsage: whatsdemo %s\n", args[1:], c.Usage())
		return errors.New("too many arguments")
	}
	shell := "bash"
	if len(args) == 1 {
		shell = strings.ToLower(args[0])
	}
	generators := map[string]func() string{"bash": c.bash, "zsh": c.zsh, "fish": c.fish}
	generate, ok := generators[shell]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Unsupported shell: %s\nSupported shells: bash, zsh, fish\n", shell)
		return fmt.Errorf("unsupported shell: %s", shell)
	}
	_, err := io.WriteString(stdout, generate())
	return err
}

// described calls fn for every registered command with its description.
func (c *CompletionCommand) described(fn func(name, description string)) {
	for _, name := range c.registry.List() {
		if cmd, err := c.registry.Get(name); err == nil {
			fn(name, cmd.Description())
		}
	}
}

func (c *CompletionCommand) bash() string {
	return fmt.Sprintf(`#!/bin/bash
# Bash completion script for whatsdemo

_whatsdemo_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=($(compgen -W "%s" -- ${cur}))
        return 0
    fi

    case "${prev}" in
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- ${cur}))
            ;;
        message)
            COMPREPLY=($(compgen -W "%s" -- ${cur}))
            ;;
        add)
            COMPREPLY=($(compgen -W "user agent" -- ${cur}))
            ;;
        help)
            COMPREPLY=($(compgen -W "%[1]s" -- ${cur}))
            ;;
        *)
            COMPREPLY=($(compgen -f -- ${cur}))
            ;;
    esac
    return 0
}

complete -F _whatsdemo_completion whatsdemo

# To install: source <(whatsdemo completion bash)
`, strings.Join(c.registry.List(), " "), strings.Join(messageSubcommands, " "))
}

func (c *CompletionCommand) zsh() string {
	var commands strings.Builder
	c.described(func(name, description string) {
		fmt.Fprintf(&commands, "                '%s:%s'\n", name, strings.ReplaceAll(description, "'", "'\\''"))
	})

	return fmt.Sprintf(`#compdef whatsdemo

# Zsh completion script for whatsdemo

_whatsdemo() {
    local state line
    typeset -A opt_args

    _arguments -C \
        '1: :->commands' \
        '*: :->args' && return 0

    case "$state" in
        commands)
            local commands
            commands=(
%s            )
            _describe 'commands' commands
            ;;
        args)
            case ${words[2]} in
                completion)
                    _values 'shell' 'bash' 'zsh' 'fish'
                    ;;
                message)
                    if (( CURRENT == 3 )); then
                        local -a subcommands
                        subcommands=(%s)
                        _describe 'subcommand' subcommands
                    fi
                    ;;
                *)
                    _files
                    ;;
            esac
            ;;
    esac
}

_whatsdemo "$@"

# To install: whatsdemo completion zsh > "${fpath[1]}/_whatsdemo"
`, commands.String(), strings.Join(messageSubcommands, " "))
}

func (c *CompletionCommand) fish() string {
	var b strings.Builder
	b.WriteString("# Fish completion script for whatsdemo\n\n")
	c.described(func(name, description string) {
		fmt.Fprintf(&b, "complete -c whatsdemo -n '__fish_use_subcommand' -a '%s' -d '%s'\n",
			name, strings.ReplaceAll(description, "'", "\\'"))
	})
	b.WriteString("complete -c whatsdemo -n '__fish_seen_subcommand_from completion' -a 'bash zsh fish' -d 'Shell'\n")
	fmt.Fprintf(&b, "complete -c whatsdemo -n '__fish_seen_subcommand_from message' -a '%s' -d 'Message subcommand'\n",
		strings.Join(messageSubcommands, " "))
	b.WriteString("\n# To install: whatsdemo completion fish > ~/.config/fish/completions/whatsdemo.fish\n")
	return b.String()
}
