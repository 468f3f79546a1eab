package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	wsl "github.com/wslbridge/wsl"
	"github.com/wslbridge/wsl/internal/config"
	"github.com/wslbridge/wsl/internal/doctor"
)

// withClient wraps a command body with client construction and teardown.
func withClient(newClient clientFactory, body func(cmd *cobra.Command, args []string, client *wsl.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return body(cmd, args, client)
	}
}

// resolveDistribution maps a name to its identifier, falling back to the
// service's default distribution when the name is empty.
func resolveDistribution(client *wsl.Client, name string) (uuid.UUID, error) {
	if strings.TrimSpace(name) != "" {
		return client.DistributionID(name)
	}
	return client.GetDefaultDistribution()
}

func newListCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered distributions",
		Args:  cobra.NoArgs,
		RunE: withClient(newClient, func(cmd *cobra.Command, _ []string, client *wsl.Client) error {
			distros, err := client.EnumerateDistributions()
			if err != nil {
				return err
			}
			defaultID, err := client.GetDefaultDistribution()
			if err != nil {
				return err
			}
			if logger != nil {
				logger.With("count", len(distros)).Debug("enumerated distributions")
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tVERSION\tID")
			for _, d := range distros {
				name := d.Name
				if d.ID == defaultID {
					name += " (default)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, d.State, d.Version, d.ID)
			}
			return w.Flush()
		}),
	}
}

func newDefaultCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "default [distribution]",
		Short: "Show or change the default distribution",
		Args:  cobra.MaximumNArgs(1),
		RunE: withClient(newClient, func(cmd *cobra.Command, args []string, client *wsl.Client) error {
			if len(args) == 0 {
				id, err := client.GetDefaultDistribution()
				if err != nil {
					return err
				}
				distros, err := client.EnumerateDistributions()
				if err != nil {
					return err
				}
				for _, d := range distros {
					if d.ID == id {
						fmt.Fprintln(cmd.OutOrStdout(), d.Name)
						return nil
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}

			id, err := client.DistributionID(args[0])
			if err != nil {
				return err
			}
			if err := client.SetDefaultDistribution(id); err != nil {
				return err
			}
			if logger != nil {
				logger.With("distribution", args[0]).Info("default distribution changed")
			}
			return nil
		}),
	}
}

func newRunCommand(cfg *config.Config, logger *log.Logger, newClient clientFactory) *cobra.Command {
	var (
		distroName string
		username   string
		workingDir string
	)
	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command inside a distribution",
		Args:  cobra.MinimumNArgs(1),
		RunE: withClient(newClient, func(cmd *cobra.Command, args []string, client *wsl.Client) error {
			name := distroName
			if name == "" && cfg != nil {
				name = cfg.DefaultDistribution
			}
			id, err := resolveDistribution(client, name)
			if err != nil {
				return err
			}
			user := username
			if user == "" && cfg != nil {
				user = cfg.DefaultUser
			}

			process, err := client.Launch(cmd.Context(), id, args[0], args, workingDir, user)
			if err != nil {
				return err
			}
			defer process.Close()
			if logger != nil {
				logger.With("distribution", name, "filename", args[0]).Info("guest process launched")
			}

			var streams sync.WaitGroup
			if stdout := process.TakeStdout(); stdout != nil {
				streams.Add(1)
				go func() {
					defer streams.Done()
					defer stdout.Close()
					io.Copy(cmd.OutOrStdout(), stdout)
				}()
			}
			if stderr := process.TakeStderr(); stderr != nil {
				streams.Add(1)
				go func() {
					defer streams.Done()
					defer stderr.Close()
					io.Copy(cmd.ErrOrStderr(), stderr)
				}()
			}
			if stdin := process.TakeStdin(); stdin != nil {
				go func() {
					defer stdin.Close()
					io.Copy(stdin, cmd.InOrStdin())
				}()
			}

			status, err := process.Wait()
			streams.Wait()
			if err != nil {
				return err
			}
			if status.Unknown {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: exit status unavailable, the completion channel dropped")
				return nil
			}
			if status.Code != 0 {
				return fmt.Errorf("command exited with status %d", status.Code)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&distroName, "distribution", "d", "", "distribution to run in (default: configured or service default)")
	cmd.Flags().StringVarP(&username, "user", "u", "", "guest username to run as")
	cmd.Flags().StringVar(&workingDir, "cwd", "", "guest working directory")
	return cmd
}

func newExportCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	var (
		vhd  bool
		gzip bool
	)
	cmd := &cobra.Command{
		Use:   "export <distribution> <file>",
		Short: "Export a distribution image to a file",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(newClient, func(cmd *cobra.Command, args []string, client *wsl.Client) error {
			id, err := client.DistributionID(args[0])
			if err != nil {
				return err
			}

			// #nosec G304 -- destination path is an explicit CLI argument.
			file, err := os.OpenFile(args[1], os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer file.Close()

			var flags wsl.ExportFlags
			if vhd {
				flags |= wsl.ExportVHD
			}
			if gzip {
				flags |= wsl.ExportGzip
			}

			err = withProgressPipe(cmd.ErrOrStderr(), func(progress *os.File) error {
				return client.ExportDistribution(id, file, progress, flags)
			})
			if err != nil {
				return err
			}
			if logger != nil {
				logger.With("distribution", args[0], "file", args[1]).Info("distribution exported")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&vhd, "vhd", false, "export as a VHD image")
	cmd.Flags().BoolVar(&gzip, "gzip", false, "compress the exported image with gzip")
	return cmd
}

func newImportCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	var (
		versionFlag int
		vhd         bool
	)
	cmd := &cobra.Command{
		Use:   "import <name> <file>",
		Short: "Register a distribution from an exported image",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(newClient, func(cmd *cobra.Command, args []string, client *wsl.Client) error {
			version, err := parseVersion(versionFlag)
			if err != nil {
				return err
			}

			// #nosec G304 -- image path is an explicit CLI argument.
			file, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open image file: %w", err)
			}
			defer file.Close()

			var flags wsl.ImportFlags
			if vhd {
				flags |= wsl.ImportVHD
			}

			var (
				id        uuid.UUID
				installed string
			)
			err = withProgressPipe(cmd.ErrOrStderr(), func(progress *os.File) error {
				id, installed, err = client.RegisterDistribution(args[0], version, file, progress, flags)
				return err
			})
			if err != nil {
				return err
			}
			if logger != nil {
				logger.With("distribution", installed, "id", id.String()).Info("distribution registered")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", installed, id)
			return nil
		}),
	}
	cmd.Flags().IntVar(&versionFlag, "version", 2, "distribution version (1 or 2)")
	cmd.Flags().BoolVar(&vhd, "vhd", false, "the image file is a VHD")
	return cmd
}

func newSetVersionCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "set-version <distribution> <version>",
		Short: "Convert a distribution between versions 1 and 2",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(newClient, func(cmd *cobra.Command, args []string, client *wsl.Client) error {
			var requested int
			if _, err := fmt.Sscanf(args[1], "%d", &requested); err != nil {
				return fmt.Errorf("parse version %q: %w", args[1], err)
			}
			version, err := parseVersion(requested)
			if err != nil {
				return err
			}

			id, err := client.DistributionID(args[0])
			if err != nil {
				return err
			}
			err = withProgressPipe(cmd.ErrOrStderr(), func(progress *os.File) error {
				return client.SetVersion(id, version, progress)
			})
			if err != nil {
				return err
			}
			if logger != nil {
				logger.With("distribution", args[0], "version", version.String()).Info("distribution converted")
			}
			return nil
		}),
	}
}

func newTerminateCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <distribution>",
		Short: "Stop a running distribution",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(newClient, func(cmd *cobra.Command, args []string, client *wsl.Client) error {
			id, err := client.DistributionID(args[0])
			if err != nil {
				return err
			}
			if err := client.TerminateDistribution(id); err != nil {
				return err
			}
			if logger != nil {
				logger.With("distribution", args[0]).Info("distribution terminated")
			}
			return nil
		}),
	}
}

func newUnregisterCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <distribution>",
		Short: "Unregister a distribution and delete its storage",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(newClient, func(cmd *cobra.Command, args []string, client *wsl.Client) error {
			id, err := client.DistributionID(args[0])
			if err != nil {
				return err
			}
			if err := client.UnregisterDistribution(id); err != nil {
				return err
			}
			if logger != nil {
				logger.With("distribution", args[0]).Info("distribution unregistered")
			}
			return nil
		}),
	}
}

func newShutdownCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Shut down the WSL virtual machine and all distributions",
		Args:  cobra.NoArgs,
		RunE: withClient(newClient, func(_ *cobra.Command, _ []string, client *wsl.Client) error {
			if err := client.Shutdown(force); err != nil {
				return err
			}
			if logger != nil {
				logger.With("force", force).Info("service shut down")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "terminate immediately without a graceful stop")
	return cmd
}

func newDoctorCommand(logger *log.Logger, newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the local WSL environment for problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := doctor.NewManager(
				&doctor.ServiceCheck{Probe: func() error {
					client, probeErr := newClient()
					if probeErr != nil {
						return probeErr
					}
					client.Close()
					return nil
				}},
				&doctor.ConfigCheck{},
				&doctor.LogDirCheck{},
			)
			if err != nil {
				return err
			}

			report, err := manager.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			for _, result := range report.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s: %s\n", strings.ToUpper(string(result.Status)), result.Name, result.Detail)
			}
			if !report.Healthy {
				return errors.New("environment checks failed")
			}
			if logger != nil {
				logger.With("checks", len(report.Results)).Info("environment healthy")
			}
			return nil
		},
	}
}

func parseVersion(requested int) (wsl.Version, error) {
	switch requested {
	case 1:
		return wsl.WSL1, nil
	case 2:
		return wsl.WSL2, nil
	default:
		return 0, fmt.Errorf("unsupported distribution version %d, expected 1 or 2", requested)
	}
}

// withProgressPipe allocates the pipe that long-running service
// operations stream progress text into, relaying it to out until the
// operation returns and the write end is closed.
func withProgressPipe(out io.Writer, operation func(progress *os.File) error) error {
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("allocate progress pipe: %w", err)
	}

	var relay sync.WaitGroup
	relay.Add(1)
	go func() {
		defer relay.Done()
		defer r.Close()
		io.Copy(out, r)
	}()

	opErr := operation(w)
	w.Close()
	relay.Wait()
	return opErr
}
