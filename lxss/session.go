// Package lxss defines the boundary to the WSL user-session control
// service: the session contract, its request/response shapes, the
// error-info structure, and local handle validation. These shapes mirror
// the service's wire contract and must not be redesigned; the COM
// marshaling that backs them on Windows ships outside this module and is
// plugged in through RegisterActivator.
package lxss

import (
	"io"
	"net"
	"os"

	"github.com/google/uuid"
)

// Version identifies a distribution's execution generation.
type Version uint32

// Known distribution versions.
const (
	VersionWSL1 Version = 1
	VersionWSL2 Version = 2
)

func (v Version) String() string {
	switch v {
	case VersionWSL1:
		return "WSL1"
	case VersionWSL2:
		return "WSL2"
	default:
		return "unknown"
	}
}

// DistributionState is the lifecycle state reported for a distribution.
type DistributionState uint32

// Distribution lifecycle states.
const (
	StateStopped DistributionState = iota + 1
	StateRunning
	StateInstalling
	StateUninstalling
	StateConverting
)

func (s DistributionState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StateInstalling:
		return "Installing"
	case StateUninstalling:
		return "Uninstalling"
	case StateConverting:
		return "Converting"
	default:
		return "unknown"
	}
}

// Distribution describes one registered guest environment.
type Distribution struct {
	ID      uuid.UUID
	Name    string
	State   DistributionState
	Version Version
	Flags   uint32
}

// Handle type tags carried in the standard-handle block (LXSS_HANDLE.HandleType).
const (
	HandleConsole uint32 = iota
	HandleInput
	HandleOutput
)

// StdHandle pairs one pipe endpoint with its handle-type tag.
type StdHandle struct {
	File *os.File
	Type uint32
}

// StdHandles is the standard-handle block passed to CreateProcess: the
// read end of the guest's stdin and the write ends of its stdout/stderr.
type StdHandles struct {
	Stdin  StdHandle
	Stdout StdHandle
	Stderr StdHandle
}

// ProcessObject wraps the kernel process handle returned by a launch that
// took the direct path. A nil ProcessObject in a CreateProcessResult means
// the launch took the interop path instead.
type ProcessObject interface {
	// WaitRaw blocks until the process terminates and returns the raw
	// status word. The guest encodes the numeric exit code shifted left
	// by 8 bits.
	WaitRaw() (uint32, error)
	io.Closer
}

// CreateProcessRequest carries the inputs of the CreateLxProcess call.
type CreateProcessRequest struct {
	DistributionID   uuid.UUID
	Filename         string
	Args             []string
	WorkingDirectory string
	Username         string
	Columns          int16
	Rows             int16
	StdHandles       StdHandles
	Flags            uint32
}

// CreateProcessResult carries the outputs of the CreateLxProcess call.
// Every non-nil handle is owned by the caller, which must either transfer
// it onward or close it.
type CreateProcessResult struct {
	DistributionID uuid.UUID
	InstanceID     uuid.UUID

	// Process is non-nil only on the direct path.
	Process ProcessObject

	// Server is the service's own handle echo. Callers have no use for
	// it and close it immediately.
	Server io.Closer

	// Stdin, Stdout and Stderr echo back standard handles the service
	// did not consume.
	Stdin  io.Closer
	Stdout io.Closer
	Stderr io.Closer

	// CommChannel is the guest communication channel; held for the
	// process lifetime on the interop path.
	CommChannel io.Closer

	// InteropSocket is non-nil only on the interop path. It carries
	// framed messages from the guest's init process.
	InteropSocket net.Conn
}

// Session is the control-service session contract.
//
// The session object is apartment-bound: operations that mutate
// session-wide state (Shutdown, CreateProcess) may only run on the thread
// that activated the session. Read-style operations tolerate concurrent
// entry once the session is initialized. The bridge enforces this
// structurally; implementations need no locking of their own.
type Session interface {
	Shutdown(force bool) error

	GetDefaultDistribution() (uuid.UUID, error)
	SetDefaultDistribution(id uuid.UUID) error
	EnumerateDistributions() ([]Distribution, error)
	DistributionID(name string) (uuid.UUID, error)
	TerminateDistribution(id uuid.UUID) error
	UnregisterDistribution(id uuid.UUID) error

	ExportDistribution(id uuid.UUID, file, stderr *os.File, flags uint32) error
	RegisterDistribution(name string, version Version, file, stderr *os.File, flags uint32) (uuid.UUID, string, error)
	SetVersion(id uuid.UUID, version Version, stderr *os.File) error

	CreateProcess(req CreateProcessRequest) (*CreateProcessResult, error)

	// Release frees the session object. Called exactly once, on the
	// activating thread, after the work queue drains.
	Release()
}
