package wsl

import (
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/wslbridge/wsl/internal/interop"
	"github.com/wslbridge/wsl/lxss"
)

// ExitStatus describes how a guest process terminated.
type ExitStatus struct {
	// Code is the numeric exit code reported by the guest.
	Code int
	// Unknown reports that the completion channel dropped before an exit
	// notification arrived; Code is zero in that case.
	Unknown bool
}

// completionResolver yields a launched process's exit status. The variant
// is chosen at launch from the response's process-handle validity and
// never changes afterwards.
type completionResolver interface {
	wait() (ExitStatus, error)
	io.Closer
}

// directResolver resolves completion by a blocking wait on the kernel
// process handle.
type directResolver struct {
	process lxss.ProcessObject
}

func (r *directResolver) wait() (ExitStatus, error) {
	raw, err := r.process.WaitRaw()
	if err != nil {
		return ExitStatus{}, err
	}
	// The guest stores the exit code shifted left by 8 in the raw status
	// word; shift it back out.
	return ExitStatus{Code: int(raw >> 8)}, nil
}

func (r *directResolver) Close() error {
	return r.process.Close()
}

// interopResolver resolves completion from the frame reader's one-shot
// termination channel.
type interopResolver struct {
	reader      *interop.Reader
	commChannel io.Closer
}

func (r *interopResolver) wait() (ExitStatus, error) {
	code, ok := r.reader.RecvExitCode()
	if !ok {
		// The socket dropped before an exit message. Report an unknown
		// status rather than blocking forever or failing the caller.
		return ExitStatus{Unknown: true}, nil
	}
	return ExitStatus{Code: int(code)}, nil
}

func (r *interopResolver) Close() error {
	if r.commChannel != nil {
		return r.commChannel.Close()
	}
	return nil
}

// Process is one launched guest process. Its standard streams are
// connected at launch; take ownership of the ones you read or write and
// call Wait (or Close) to release everything else.
type Process struct {
	DistributionID uuid.UUID
	InstanceID     uuid.UUID

	mu       sync.Mutex
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	resolver completionResolver
	retained []io.Closer
	closed   bool
}

// TakeStdin transfers ownership of the process's standard input to the
// caller, who becomes responsible for closing it. Returns nil on second
// and later calls, and after Close.
func (p *Process) TakeStdin() io.WriteCloser {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.stdin
	p.stdin = nil
	return w
}

// TakeStdout transfers ownership of the process's standard output to the
// caller. Returns nil on second and later calls, and after Close.
func (p *Process) TakeStdout() io.ReadCloser {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.stdout
	p.stdout = nil
	return r
}

// TakeStderr transfers ownership of the process's standard error to the
// caller. Returns nil on second and later calls, and after Close.
func (p *Process) TakeStderr() io.ReadCloser {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.stderr
	p.stderr = nil
	return r
}

// Wait blocks until the guest process terminates and returns its exit
// status, then releases every handle the process still owns. The
// underlying wait cannot be interrupted; cancellation has to be layered
// above by the caller.
func (p *Process) Wait() (ExitStatus, error) {
	p.mu.Lock()
	resolver := p.resolver
	p.resolver = nil
	p.mu.Unlock()
	if resolver == nil {
		return ExitStatus{}, lxss.NewStatusError(lxss.CodeInvalidUsage, "process already waited on or closed")
	}

	status, err := resolver.wait()
	resolver.Close()
	p.Close()
	return status, err
}

// Close releases every handle the process still owns: the completion
// resolver's handle and any stream endpoints the caller did not take.
// Idempotent; handles transferred out through the Take methods are
// untouched.
func (p *Process) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	if p.resolver != nil {
		p.resolver.Close()
		p.resolver = nil
	}
	for _, c := range []io.Closer{p.stdin, p.stdout, p.stderr} {
		if c != nil {
			c.Close()
		}
	}
	p.stdin, p.stdout, p.stderr = nil, nil, nil
	for _, c := range p.retained {
		if c != nil {
			c.Close()
		}
	}
	p.retained = nil
}
