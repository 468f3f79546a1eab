package wsl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wslbridge/wsl/internal/interop"
	"github.com/wslbridge/wsl/lxss"
)

// stdioPipes is the pipe set allocated for one launch. The guest-facing
// ends travel to the service in the standard-handle block; the host-facing
// ends become the Process's stream endpoints.
type stdioPipes struct {
	stdinR, stdinW   *os.File
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

func newStdioPipes() (*stdioPipes, error) {
	p := &stdioPipes{}
	var err error
	if p.stdinR, p.stdinW, err = os.Pipe(); err != nil {
		return nil, fmt.Errorf("allocate stdin pipe: %w", err)
	}
	if p.stdoutR, p.stdoutW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("allocate stdout pipe: %w", err)
	}
	if p.stderrR, p.stderrW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("allocate stderr pipe: %w", err)
	}
	return p, nil
}

func (p *stdioPipes) closeAll() {
	for _, f := range []*os.File{p.stdinR, p.stdinW, p.stdoutR, p.stdoutW, p.stderrR, p.stderrW} {
		if f != nil {
			f.Close()
		}
	}
}

// Launch starts an executable inside a distribution and returns a Process
// with connected standard streams. The launch is routed through the
// apartment thread: it must not race Shutdown or another launch touching
// shared session state.
//
// The response's process handle decides the completion mechanism: a valid
// handle means the direct path (kernel-object wait), an absent one means
// the service returned an interop socket and exit status arrives as a
// framed message. The variant is fixed here and never changes.
func (c *Client) Launch(ctx context.Context, distroID uuid.UUID, filename string, args []string, workingDirectory string, username string) (_ *Process, err error) {
	_, span := c.tracer.Start(ctx, "wsl.Launch", trace.WithAttributes(
		attribute.String("wsl.distribution_id", distroID.String()),
		attribute.String("wsl.filename", filename),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	pipes, err := newStdioPipes()
	if err != nil {
		return nil, err
	}

	req := lxss.CreateProcessRequest{
		DistributionID:   distroID,
		Filename:         filename,
		Args:             args,
		WorkingDirectory: workingDirectory,
		Username:         username,
		StdHandles: lxss.StdHandles{
			Stdin:  lxss.StdHandle{File: pipes.stdinR, Type: lxss.HandleInput},
			Stdout: lxss.StdHandle{File: pipes.stdoutW, Type: lxss.HandleOutput},
			Stderr: lxss.StdHandle{File: pipes.stderrW, Type: lxss.HandleOutput},
		},
	}

	var result *lxss.CreateProcessResult
	err = c.bridge.ExecuteThread(func(s lxss.Session) error {
		var err error
		result, err = s.CreateProcess(req)
		return err
	})
	if err != nil {
		pipes.closeAll()
		return nil, err
	}

	// Handles the service echoed back but we have no use for are closed
	// here; every handle has exactly one owner from this point on.
	closeAll(result.Server, result.Stdin, result.Stdout, result.Stderr)

	proc := &Process{
		DistributionID: result.DistributionID,
		InstanceID:     result.InstanceID,
		stdin:          pipes.stdinW,
		stdout:         pipes.stdoutR,
		stderr:         pipes.stderrR,
		retained:       []io.Closer{pipes.stdinR, pipes.stdoutW, pipes.stderrW},
	}

	if result.Process != nil {
		// Direct path. An interop socket is not expected here; drop any
		// stray side-channel handles rather than leak them.
		closeAll(result.CommChannel)
		if result.InteropSocket != nil {
			result.InteropSocket.Close()
		}
		proc.resolver = &directResolver{process: result.Process}
		span.SetAttributes(attribute.String("wsl.completion_path", "direct"))
		return proc, nil
	}

	if result.InteropSocket == nil {
		proc.Close()
		return nil, lxss.NewStatusError(lxss.CodeInvalidUsage,
			"launch response carried neither a process handle nor an interop socket")
	}

	// Interop path: the frame reader takes ownership of the socket; the
	// communication channel stays open for the process lifetime.
	proc.resolver = &interopResolver{
		reader:      interop.NewReader(result.InteropSocket, c.logger),
		commChannel: result.CommChannel,
	}
	span.SetAttributes(attribute.String("wsl.completion_path", "interop"))
	return proc, nil
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			c.Close()
		}
	}
}
