// Package doctor runs deterministic environment health checks for the
// CLI: service reachability, config validity, and log directory state.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wslbridge/wsl/internal/config"
	"github.com/wslbridge/wsl/lxss"
)

// Status is the outcome of one health check.
type Status string

// Check outcomes.
const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Check is one deterministic environment probe.
type Check interface {
	Name() string
	Run(ctx context.Context) CheckResult
}

// Report aggregates the results of one doctor pass.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Results   []CheckResult `json:"results"`
	Healthy   bool          `json:"healthy"`
}

// Manager executes health checks in registration order.
type Manager struct {
	checks []Check
	now    func() time.Time
}

// NewManager builds a doctor manager over the given checks.
func NewManager(checks ...Check) (*Manager, error) {
	if len(checks) == 0 {
		return nil, errors.New("at least one check is required")
	}
	for _, check := range checks {
		if check == nil {
			return nil, errors.New("checks must not be nil")
		}
	}
	return &Manager{checks: checks, now: time.Now}, nil
}

// RunOnce executes every check and reports aggregate health. Warnings do
// not make the report unhealthy; failures do.
func (m *Manager) RunOnce(ctx context.Context) (Report, error) {
	if m == nil {
		return Report{}, errors.New("doctor manager is nil")
	}

	report := Report{
		Timestamp: m.now().UTC(),
		Healthy:   true,
	}
	for _, check := range m.checks {
		result := check.Run(ctx)
		if result.Status == StatusFail {
			report.Healthy = false
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}

// ServiceCheck probes the control service by activating and releasing a
// session.
type ServiceCheck struct {
	// Probe activates a throwaway session, returning the activation error.
	Probe func() error
}

// Name implements Check.
func (c *ServiceCheck) Name() string { return "control service" }

// Run implements Check.
func (c *ServiceCheck) Run(_ context.Context) CheckResult {
	result := CheckResult{Name: c.Name()}
	if c.Probe == nil {
		result.Status = StatusFail
		result.Detail = "no service probe configured"
		return result
	}

	err := c.Probe()
	switch {
	case err == nil:
		result.Status = StatusOK
		result.Detail = "session activated"
	case lxss.KindOf(err) == lxss.KindUnsupportedPlatform:
		result.Status = StatusFail
		result.Detail = "WSL is not available on this host"
	case lxss.KindOf(err) == lxss.KindUnsupportedService:
		result.Status = StatusFail
		result.Detail = "the installed WSL service is too old for this client"
	default:
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("session activation failed: %v", err)
	}
	return result
}

// ConfigCheck verifies that the config files parse.
type ConfigCheck struct {
	// Load defaults to config.Load.
	Load func(ctx context.Context) (*config.Config, error)
}

// Name implements Check.
func (c *ConfigCheck) Name() string { return "config" }

// Run implements Check.
func (c *ConfigCheck) Run(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name()}
	load := c.Load
	if load == nil {
		load = config.Load
	}

	cfg, err := load(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("config unreadable: %v", err)
		return result
	}
	result.Status = StatusOK
	result.Detail = fmt.Sprintf("log level %s", cfg.LogLevel)
	if cfg.DefaultDistribution != "" {
		result.Detail += fmt.Sprintf(", default distribution %s", cfg.DefaultDistribution)
	}
	return result
}

// LogDirCheck verifies that the log directory exists and is writable.
type LogDirCheck struct {
	// HomeDir defaults to os.UserHomeDir.
	HomeDir func() (string, error)
}

// Name implements Check.
func (c *LogDirCheck) Name() string { return "log directory" }

// Run implements Check.
func (c *LogDirCheck) Run(_ context.Context) CheckResult {
	result := CheckResult{Name: c.Name()}
	homeDir := c.HomeDir
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}

	home, err := homeDir()
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("home directory unresolvable: %v", err)
		return result
	}

	logDir := filepath.Join(home, ".wslb", "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("log directory not writable: %v", err)
		return result
	}
	probe, err := os.CreateTemp(logDir, ".doctor-*")
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("log directory not writable: %v", err)
		return result
	}
	probe.Close()
	os.Remove(probe.Name())

	result.Status = StatusOK
	result.Detail = logDir
	return result
}
