package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	wsl "github.com/wslbridge/wsl"
	"github.com/wslbridge/wsl/internal/config"
	"github.com/wslbridge/wsl/internal/logging"
	"github.com/wslbridge/wsl/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(ctx, logging.WithLevel(logging.ParseLevel(cfg.LogLevel)))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	if cfg.TelemetryEnabled {
		if cfg.TelemetryEndpoint != "" {
			telemetry.SetEndpointOverride(cfg.TelemetryEndpoint)
		}
		telemetry.ServiceVersion = Version
		shutdown, telErr := telemetry.Init(ctx)
		if telErr != nil {
			return fmt.Errorf("initialize telemetry: %w", telErr)
		}
		defer shutdown()
	}

	cmd := newRootCommand(cfg, logger.Logger, defaultClientFactory(logger.Logger))
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// clientFactory produces the service client used by the subcommands.
// Tests substitute one backed by a fake session.
type clientFactory func() (*wsl.Client, error)

func defaultClientFactory(logger *log.Logger) clientFactory {
	return func() (*wsl.Client, error) {
		return wsl.New(wsl.WithLogger(logger))
	}
}

func newRootCommand(cfg *config.Config, logger *log.Logger, newClient clientFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "wslb",
		Short:         "Manage WSL distributions and run guest commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newListCommand(logger, newClient),
		newDefaultCommand(logger, newClient),
		newRunCommand(cfg, logger, newClient),
		newExportCommand(logger, newClient),
		newImportCommand(logger, newClient),
		newSetVersionCommand(logger, newClient),
		newTerminateCommand(logger, newClient),
		newUnregisterCommand(logger, newClient),
		newShutdownCommand(logger, newClient),
		newDoctorCommand(logger, newClient),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	return root
}
