//go:build !windows

package lxss

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestValidateFileHandleAcceptsPipe(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if err := ValidateFileHandle("stderr_handle", w, FileTypePipe); err != nil {
		t.Fatalf("validate pipe handle: %v", err)
	}
}

func TestValidateFileHandleAcceptsRegularFile(t *testing.T) {
	t.Parallel()

	f, err := os.CreateTemp(t.TempDir(), "export-*.tar")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()

	if err := ValidateFileHandle("file_handle", f, FileTypeDisk); err != nil {
		t.Fatalf("validate file handle: %v", err)
	}
}

func TestValidateFileHandleRejectsCharDeviceWherePipeRequired(t *testing.T) {
	t.Parallel()

	f, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open %s: %v", os.DevNull, err)
	}
	defer f.Close()

	err = ValidateFileHandle("stderr_handle", f, FileTypePipe)
	if err == nil {
		t.Fatal("expected validation error for character device")
	}

	var status *StatusError
	if !errors.As(err, &status) {
		t.Fatalf("error = %T, want *StatusError", err)
	}
	if status.Code != CodeInvalidUsage {
		t.Fatalf("status code = 0x%08x, want CodeInvalidUsage", status.Code)
	}
	msg := status.Info.Message
	for _, expected := range []string{"stderr_handle", "must be a pipe", "got a character device"} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("message = %q, missing %q", msg, expected)
		}
	}
}

func TestValidateFileHandleRejectsNil(t *testing.T) {
	t.Parallel()

	err := ValidateFileHandle("file_handle", nil, FileTypeDisk)
	if err == nil {
		t.Fatal("expected validation error for nil handle")
	}
	if !strings.Contains(err.Error(), "WSL error: Invalid usage") {
		t.Fatalf("error = %q, want known invalid-usage rendering", err)
	}
}
