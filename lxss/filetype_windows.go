//go:build windows

package lxss

import (
	"os"

	"golang.org/x/sys/windows"
)

func fileTypeOf(f *os.File) (FileType, error) {
	t, err := windows.GetFileType(windows.Handle(f.Fd()))
	if err != nil {
		return FileTypeUnknown, err
	}
	switch t {
	case windows.FILE_TYPE_DISK:
		return FileTypeDisk, nil
	case windows.FILE_TYPE_PIPE:
		return FileTypePipe, nil
	case windows.FILE_TYPE_CHAR:
		return FileTypeChar, nil
	case windows.FILE_TYPE_REMOTE:
		return FileTypeRemote, nil
	default:
		return FileTypeUnknown, nil
	}
}
