//go:build !windows

package lxss

import (
	"fmt"
	"os"
)

// fileTypeOf maps stat mode bits onto the handle-type taxonomy the service
// expects. Anonymous pipes stat as FIFOs; sockets count as pipes the same
// way the Windows side reports socket handles as FILE_TYPE_PIPE.
func fileTypeOf(f *os.File) (FileType, error) {
	info, err := f.Stat()
	if err != nil {
		return FileTypeUnknown, fmt.Errorf("stat handle: %w", err)
	}
	mode := info.Mode()
	switch {
	case mode&os.ModeNamedPipe != 0, mode&os.ModeSocket != 0:
		return FileTypePipe, nil
	case mode&os.ModeCharDevice != 0:
		return FileTypeChar, nil
	case mode.IsRegular():
		return FileTypeDisk, nil
	default:
		return FileTypeUnknown, nil
	}
}
