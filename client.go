// Package wsl is a client for the Windows Subsystem for Linux control
// service. It manages distributions and launches guest processes with
// connected standard streams, hiding the service's single-threaded
// apartment requirement behind a synchronous API callable from any
// goroutine.
package wsl

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wslbridge/wsl/internal/bridge"
	"github.com/wslbridge/wsl/lxss"
)

const tracerName = "github.com/wslbridge/wsl"

// Option configures Client creation.
type Option func(*options)

type options struct {
	activator lxss.Activator
	logger    *log.Logger
}

// WithActivator overrides the session activator. Used by tests and by
// embedders that supply their own marshaling layer.
func WithActivator(a lxss.Activator) Option {
	return func(o *options) { o.activator = a }
}

// WithLogger sets the logger used by the client and its frame readers.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Client owns one apartment bridge and, through it, one control-service
// session. Methods are safe to call from any goroutine.
type Client struct {
	bridge *bridge.Bridge
	logger *log.Logger
	tracer trace.Tracer
}

// New activates a session on a dedicated apartment thread and returns a
// client bound to it. Classify construction failures with lxss.KindOf:
// hosts without WSL report an unsupported platform, hosts whose service
// predates the session interface report an unsupported service version.
func New(opts ...Option) (*Client, error) {
	resolved := options{activator: lxss.Activate}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}

	b, err := bridge.New(resolved.activator, resolved.logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		bridge: b,
		logger: resolved.logger,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Close shuts the apartment bridge down after draining queued operations.
// Safe to call more than once.
func (c *Client) Close() {
	c.bridge.Close()
}

// Shutdown shuts down the WSL virtual machine and all running
// distributions. Routed through the apartment thread so it cannot race a
// concurrent launch.
func (c *Client) Shutdown(force bool) error {
	return c.bridge.ExecuteThread(func(s lxss.Session) error {
		return s.Shutdown(force)
	})
}

// GetDefaultDistribution returns the identifier of the default
// distribution.
func (c *Client) GetDefaultDistribution() (uuid.UUID, error) {
	var id uuid.UUID
	err := c.bridge.Execute(func(s lxss.Session) error {
		var err error
		id, err = s.GetDefaultDistribution()
		return err
	})
	return id, err
}

// SetDefaultDistribution makes id the default distribution.
func (c *Client) SetDefaultDistribution(id uuid.UUID) error {
	return c.bridge.Execute(func(s lxss.Session) error {
		return s.SetDefaultDistribution(id)
	})
}

// EnumerateDistributions lists the registered distributions.
func (c *Client) EnumerateDistributions() ([]lxss.Distribution, error) {
	var distros []lxss.Distribution
	err := c.bridge.Execute(func(s lxss.Session) error {
		var err error
		distros, err = s.EnumerateDistributions()
		return err
	})
	return distros, err
}

// DistributionID resolves a distribution name to its identifier.
func (c *Client) DistributionID(name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := c.bridge.Execute(func(s lxss.Session) error {
		var err error
		id, err = s.DistributionID(name)
		return err
	})
	return id, err
}

// TerminateDistribution stops a running distribution.
func (c *Client) TerminateDistribution(id uuid.UUID) error {
	return c.bridge.ExecuteThread(func(s lxss.Session) error {
		return s.TerminateDistribution(id)
	})
}

// UnregisterDistribution removes a distribution and its backing storage.
func (c *Client) UnregisterDistribution(id uuid.UUID) error {
	return c.bridge.ExecuteThread(func(s lxss.Session) error {
		return s.UnregisterDistribution(id)
	})
}

// ExportDistribution writes a distribution image to file, streaming
// progress text to the write end of a pipe. Both handles are validated
// locally before the service is called.
func (c *Client) ExportDistribution(id uuid.UUID, file, stderr *os.File, flags ExportFlags) error {
	return c.bridge.Execute(func(s lxss.Session) error {
		// Validate inside the operation so the handles are still live
		// when the service receives them.
		if err := lxss.ValidateFileHandle("stderr_handle", stderr, lxss.FileTypePipe); err != nil {
			return err
		}
		if err := lxss.ValidateFileHandle("file_handle", file, lxss.FileTypeDisk); err != nil {
			return err
		}
		return s.ExportDistribution(id, file, stderr, uint32(flags))
	})
}

// RegisterDistribution registers a new distribution from an exported
// image. The name must be unique; the service returns the installed name
// alongside the new identifier.
func (c *Client) RegisterDistribution(name string, version Version, file, stderr *os.File, flags ImportFlags) (uuid.UUID, string, error) {
	var (
		id        uuid.UUID
		installed string
	)
	err := c.bridge.Execute(func(s lxss.Session) error {
		if err := lxss.ValidateFileHandle("stderr_handle", stderr, lxss.FileTypePipe); err != nil {
			return err
		}
		if err := lxss.ValidateFileHandle("file_handle", file, lxss.FileTypeDisk); err != nil {
			return err
		}
		var err error
		id, installed, err = s.RegisterDistribution(name, version, file, stderr, uint32(flags))
		return err
	})
	return id, installed, err
}

// SetVersion converts a distribution between execution generations,
// streaming progress text to stderr.
func (c *Client) SetVersion(id uuid.UUID, version Version, stderr *os.File) error {
	return c.bridge.Execute(func(s lxss.Session) error {
		return s.SetVersion(id, version, stderr)
	})
}
