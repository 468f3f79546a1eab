package lxss

import "os"

// FileType is the OS-reported type of a file handle.
type FileType int

// File types distinguished by the validation check.
const (
	FileTypeUnknown FileType = iota
	FileTypeDisk
	FileTypePipe
	FileTypeChar
	FileTypeRemote
)

func (t FileType) String() string {
	switch t {
	case FileTypeDisk:
		return "file"
	case FileTypePipe:
		return "pipe"
	case FileTypeChar:
		return "character device"
	case FileTypeRemote:
		return "remote file"
	case FileTypeUnknown:
		return "unknown type"
	default:
		return "invalid type"
	}
}

// ValidateFileHandle checks that f's OS-reported type matches want before
// the handle is passed to the control service. Mismatches and invalid
// handles are rejected locally with a message naming the parameter and the
// expected versus observed type.
func ValidateFileHandle(name string, f *os.File, want FileType) error {
	if f == nil {
		return NewStatusError(CodeInvalidUsage, "%s is not a valid file handle", name)
	}
	got, err := fileTypeOf(f)
	if err != nil {
		return NewStatusError(CodeInvalidUsage,
			"%s (%x) is not a valid file handle: %v", name, f.Fd(), err)
	}
	if got != want {
		return NewStatusError(CodeInvalidUsage,
			"%s (%x) must be a %s (got a %s)", name, f.Fd(), want, got)
	}
	return nil
}
