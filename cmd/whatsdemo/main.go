package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/whatsdemo/internal/command"
	"github.com/joeycumines/whatsdemo/internal/config"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: ignoring configuration: %v\n", err)
		cfg = config.NewConfig()
	}

	registry := command.NewRegistry()
	helpCmd := command.NewHelpCommand(registry)
	registry.Register(helpCmd)
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewConfigCommand(cfg, configPath))
	registry.Register(command.NewInitCommand(configPath))
	registry.Register(command.NewPlayCommand(cfg, stdin))
	registry.Register(command.NewRecordCommand(cfg))
	registry.Register(command.NewImportCommand(cfg, stdin))
	registry.Register(command.NewExampleCommand(cfg))
	registry.Register(command.NewMessageCommand(cfg))
	registry.Register(command.NewCleanupCommand(cfg))
	registry.Register(command.NewLogCommand(cfg))
	registry.Register(command.NewCompletionCommand(registry))
	registry.Alias("msg", "message")
	registry.Alias("rec", "record")

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return helpCmd.Execute(ctx, nil, stdout, stderr)
	}
	return registry.Run(ctx, args[0], args[1:], stdout, stderr)
}
