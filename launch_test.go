package wsl

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wslbridge/wsl/internal/interop"
	"github.com/wslbridge/wsl/lxss"
)

// countingCloser tracks how many times it was closed.
type countingCloser struct {
	closes atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closes.Add(1)
	return nil
}

// fakeProcessObject is a direct-path kernel process handle.
type fakeProcessObject struct {
	raw    uint32
	err    error
	closes atomic.Int32
}

func (p *fakeProcessObject) WaitRaw() (uint32, error) { return p.raw, p.err }
func (p *fakeProcessObject) Close() error {
	p.closes.Add(1)
	return nil
}

// fakeSession records calls and serves canned launch results.
type fakeSession struct {
	createResult *lxss.CreateProcessResult
	createErr    error
	createCalls  atomic.Int32
	lastRequest  lxss.CreateProcessRequest

	defaultDistro uuid.UUID
	distros       []lxss.Distribution
	exportCalls   atomic.Int32
	released      atomic.Bool
}

func (s *fakeSession) Shutdown(bool) error { return nil }
func (s *fakeSession) GetDefaultDistribution() (uuid.UUID, error) {
	return s.defaultDistro, nil
}
func (s *fakeSession) SetDefaultDistribution(uuid.UUID) error { return nil }
func (s *fakeSession) EnumerateDistributions() ([]lxss.Distribution, error) {
	return s.distros, nil
}
func (s *fakeSession) DistributionID(string) (uuid.UUID, error) { return uuid.Nil, nil }
func (s *fakeSession) TerminateDistribution(uuid.UUID) error    { return nil }
func (s *fakeSession) UnregisterDistribution(uuid.UUID) error   { return nil }
func (s *fakeSession) ExportDistribution(uuid.UUID, *os.File, *os.File, uint32) error {
	s.exportCalls.Add(1)
	return nil
}
func (s *fakeSession) RegisterDistribution(string, lxss.Version, *os.File, *os.File, uint32) (uuid.UUID, string, error) {
	return uuid.Nil, "", nil
}
func (s *fakeSession) SetVersion(uuid.UUID, lxss.Version, *os.File) error { return nil }
func (s *fakeSession) CreateProcess(req lxss.CreateProcessRequest) (*lxss.CreateProcessResult, error) {
	s.createCalls.Add(1)
	s.lastRequest = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createResult, nil
}
func (s *fakeSession) Release() { s.released.Store(true) }

func newTestClient(t *testing.T, session *fakeSession) *Client {
	t.Helper()
	client, err := New(WithActivator(func() (lxss.Session, error) { return session, nil }))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func exitStatusFrame(code uint32) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], interop.MessageExitStatus)
	binary.LittleEndian.PutUint32(buf[4:8], 12)
	binary.LittleEndian.PutUint32(buf[8:12], code)
	return buf
}

func TestLaunchDirectPathDecodesShiftedExitStatus(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessObject{raw: 42 << 8}
	server := &countingCloser{}
	session := &fakeSession{
		createResult: &lxss.CreateProcessResult{
			DistributionID: uuid.New(),
			InstanceID:     uuid.New(),
			Process:        proc,
			Server:         server,
		},
	}
	client := newTestClient(t, session)

	process, err := client.Launch(context.Background(), uuid.New(), "/bin/true", []string{"true"}, "", "root")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	status, err := process.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.Code != 42 || status.Unknown {
		t.Fatalf("status = %+v, want code 42", status)
	}
	if proc.closes.Load() != 1 {
		t.Fatalf("process handle closed %d times, want 1", proc.closes.Load())
	}
	if server.closes.Load() != 1 {
		t.Fatalf("server handle echo closed %d times, want 1", server.closes.Load())
	}
}

func TestLaunchInteropPathReceivesExitCodeOverSocket(t *testing.T) {
	t.Parallel()

	guest, host := net.Pipe()
	comm := &countingCloser{}
	session := &fakeSession{
		createResult: &lxss.CreateProcessResult{
			InteropSocket: host,
			CommChannel:   comm,
		},
	}
	client := newTestClient(t, session)

	process, err := client.Launch(context.Background(), uuid.New(), "/bin/echo", []string{"echo", "hi"}, "/tmp", "root")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	go func() {
		// Unrecognized frame first; the reader must skip it by size.
		padding := make([]byte, 16)
		binary.LittleEndian.PutUint32(padding[0:4], 0x99)
		binary.LittleEndian.PutUint32(padding[4:8], 16)
		guest.Write(padding)
		guest.Write(exitStatusFrame(17))
	}()

	status, err := process.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.Code != 17 || status.Unknown {
		t.Fatalf("status = %+v, want code 17", status)
	}
	if comm.closes.Load() != 1 {
		t.Fatalf("communication channel closed %d times, want 1", comm.closes.Load())
	}
}

func TestLaunchInteropPathReturnsUnknownStatusWhenSocketDrops(t *testing.T) {
	t.Parallel()

	guest, host := net.Pipe()
	session := &fakeSession{
		createResult: &lxss.CreateProcessResult{InteropSocket: host},
	}
	client := newTestClient(t, session)

	process, err := client.Launch(context.Background(), uuid.New(), "/bin/true", nil, "", "root")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	if err := guest.Close(); err != nil {
		t.Fatalf("close guest side: %v", err)
	}

	done := make(chan ExitStatus, 1)
	go func() {
		status, err := process.Wait()
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		done <- status
	}()

	select {
	case status := <-done:
		if !status.Unknown {
			t.Fatalf("status = %+v, want unknown", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after socket drop")
	}
}

func TestLaunchVariantFollowsProcessHandleValidity(t *testing.T) {
	t.Parallel()

	t.Run("valid handle selects direct resolver", func(t *testing.T) {
		t.Parallel()
		session := &fakeSession{
			createResult: &lxss.CreateProcessResult{Process: &fakeProcessObject{}},
		}
		client := newTestClient(t, session)
		process, err := client.Launch(context.Background(), uuid.New(), "/bin/true", nil, "", "root")
		if err != nil {
			t.Fatalf("launch: %v", err)
		}
		defer process.Close()
		if _, ok := process.resolver.(*directResolver); !ok {
			t.Fatalf("resolver = %T, want *directResolver", process.resolver)
		}
	})

	t.Run("absent handle selects interop resolver", func(t *testing.T) {
		t.Parallel()
		_, host := net.Pipe()
		session := &fakeSession{
			createResult: &lxss.CreateProcessResult{InteropSocket: host},
		}
		client := newTestClient(t, session)
		process, err := client.Launch(context.Background(), uuid.New(), "/bin/true", nil, "", "root")
		if err != nil {
			t.Fatalf("launch: %v", err)
		}
		defer process.Close()
		if _, ok := process.resolver.(*interopResolver); !ok {
			t.Fatalf("resolver = %T, want *interopResolver", process.resolver)
		}
	})

	t.Run("neither handle nor socket is an error", func(t *testing.T) {
		t.Parallel()
		session := &fakeSession{createResult: &lxss.CreateProcessResult{}}
		client := newTestClient(t, session)
		if _, err := client.Launch(context.Background(), uuid.New(), "/bin/true", nil, "", "root"); err == nil {
			t.Fatal("expected launch error")
		}
	})
}

func TestLaunchPropagatesServiceError(t *testing.T) {
	t.Parallel()

	session := &fakeSession{createErr: &lxss.StatusError{Code: lxss.CodeDistroNotFound}}
	client := newTestClient(t, session)

	_, err := client.Launch(context.Background(), uuid.New(), "/bin/true", nil, "", "root")
	var status *lxss.StatusError
	if !errors.As(err, &status) || status.Code != lxss.CodeDistroNotFound {
		t.Fatalf("error = %v, want distribution-not-found status", err)
	}
}

func TestProcessCloseIsIdempotentAndSparesTakenStreams(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		createResult: &lxss.CreateProcessResult{Process: &fakeProcessObject{}},
	}
	client := newTestClient(t, session)

	process, err := client.Launch(context.Background(), uuid.New(), "/bin/cat", nil, "", "root")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	stdin := process.TakeStdin()
	if stdin == nil {
		t.Fatal("stdin was not takeable")
	}
	if process.TakeStdin() != nil {
		t.Fatal("stdin was takeable twice")
	}

	process.Close()
	process.Close()

	// The taken stream survives Close; the service-side read end is
	// closed, so writes fail with EPIPE rather than a closed-file error.
	if _, err := stdin.Write([]byte("x")); errors.Is(err, os.ErrClosed) {
		t.Fatalf("taken stdin was closed by Process.Close: %v", err)
	}
	if err := stdin.Close(); err != nil {
		t.Fatalf("close taken stdin: %v", err)
	}

	// Untaken streams were closed exactly once; a second Wait reports
	// the process as already completed.
	if _, err := process.Wait(); err == nil {
		t.Fatal("expected error from Wait after Close")
	}
}

func TestLaunchPackagesStandardHandlesForService(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		createResult: &lxss.CreateProcessResult{Process: &fakeProcessObject{}},
	}
	client := newTestClient(t, session)

	process, err := client.Launch(context.Background(), uuid.New(), "/bin/sh", []string{"sh", "-c", "true"}, "/home/root", "root")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer process.Close()

	req := session.lastRequest
	if req.Filename != "/bin/sh" || req.Username != "root" || req.WorkingDirectory != "/home/root" {
		t.Fatalf("request = %+v, launch parameters not forwarded", req)
	}
	if req.StdHandles.Stdin.Type != lxss.HandleInput {
		t.Fatalf("stdin handle type = %d, want HandleInput", req.StdHandles.Stdin.Type)
	}
	if req.StdHandles.Stdout.Type != lxss.HandleOutput || req.StdHandles.Stderr.Type != lxss.HandleOutput {
		t.Fatal("stdout/stderr handle types not tagged as output")
	}
	for name, f := range map[string]*os.File{
		"stdin":  req.StdHandles.Stdin.File,
		"stdout": req.StdHandles.Stdout.File,
		"stderr": req.StdHandles.Stderr.File,
	} {
		if f == nil {
			t.Fatalf("%s handle missing from standard-handle block", name)
		}
	}
}
