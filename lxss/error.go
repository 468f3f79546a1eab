package lxss

import (
	"errors"
	"fmt"
)

// Service status codes. The WSL_E block is the service's own error space;
// CodeClassNotRegistered is the activation failure reported by hosts whose
// service version predates the session interface.
const (
	CodeClassNotRegistered uint32 = 0x80040154

	CodeDefaultDistroNotFound        uint32 = 0x80040300
	CodeDistroNotFound               uint32 = 0x80040301
	CodeWSL1NotSupported             uint32 = 0x80040302
	CodeVMModeNotSupported           uint32 = 0x80040303
	CodeTooManyDisksAttached         uint32 = 0x80040304
	CodeConsole                      uint32 = 0x80040305
	CodeCustomKernelNotFound         uint32 = 0x80040306
	CodeUserNotFound                 uint32 = 0x80040307
	CodeInvalidUsage                 uint32 = 0x80040308
	CodeExportFailed                 uint32 = 0x80040309
	CodeImportFailed                 uint32 = 0x8004030a
	CodeDistroNotStopped             uint32 = 0x8004030b
	CodeTTYLimit                     uint32 = 0x8004030c
	CodeCustomSystemDistroError      uint32 = 0x8004030d
	CodeLowerIntegrity               uint32 = 0x8004030e
	CodeHigherIntegrity              uint32 = 0x8004030f
	CodeFSUpgradeNeeded              uint32 = 0x80040310
	CodeUserVHDAlreadyAttached       uint32 = 0x80040311
	CodeVMModeInvalidState           uint32 = 0x80040312
	CodeVMModeMountNameAlreadyExists uint32 = 0x80040313
	CodeElevationNeededToMountDisk   uint32 = 0x80040314
	CodeDiskAlreadyAttached          uint32 = 0x80040315
	CodeDiskAlreadyMounted           uint32 = 0x80040316
	CodeDiskMountFailed              uint32 = 0x80040317
	CodeDiskUnmountFailed            uint32 = 0x80040318
	CodeWSL2Needed                   uint32 = 0x80040319
	CodeVMModeInvalidMountName       uint32 = 0x8004031a
	CodeGUIApplicationsDisabled      uint32 = 0x8004031b
	CodeDistroOnlyAvailableFromStore uint32 = 0x8004031c
	CodeWSLMountNotSupported         uint32 = 0x8004031d
	CodeOptionalComponentRequired    uint32 = 0x8004031e
	CodeVMSwitchNotFound             uint32 = 0x8004031f
	CodeVMSwitchNotSet               uint32 = 0x80040320
	CodeNotALinuxDistro              uint32 = 0x80040321
	CodeOSNotSupported               uint32 = 0x80040322
	CodeInstallProcessFailed         uint32 = 0x80040323
	CodeInstallComponentFailed       uint32 = 0x80040324
	CodeDiskMountDisabled            uint32 = 0x80040325
	CodeWSL1Disabled                 uint32 = 0x80040326
	CodeVMPlatformRequired           uint32 = 0x80040327
	CodeLocalSystemNotSupported      uint32 = 0x80040328
	CodeDiskCorrupted                uint32 = 0x80040329
	CodeDistributionNameNeeded       uint32 = 0x8004032a
	CodeInvalidJSON                  uint32 = 0x8004032b
	CodeVMCrashed                    uint32 = 0x8004032c
)

var knownErrors = map[uint32]string{
	CodeDefaultDistroNotFound:        "Default distribution not found",
	CodeDistroNotFound:               "Distribution not found",
	CodeWSL1NotSupported:             "WSL 1 not supported",
	CodeVMModeNotSupported:           "VM mode not supported",
	CodeTooManyDisksAttached:         "Too many disks attached",
	CodeConsole:                      "Console",
	CodeCustomKernelNotFound:         "Custom kernel not found",
	CodeUserNotFound:                 "User not found",
	CodeInvalidUsage:                 "Invalid usage",
	CodeExportFailed:                 "Export failed",
	CodeImportFailed:                 "Import failed",
	CodeDistroNotStopped:             "Distribution not stopped",
	CodeTTYLimit:                     "TTY limit",
	CodeCustomSystemDistroError:      "Custom system distro error",
	CodeLowerIntegrity:               "Lower integrity",
	CodeHigherIntegrity:              "Higher integrity",
	CodeFSUpgradeNeeded:              "FS upgrade needed",
	CodeUserVHDAlreadyAttached:       "User VHD already attached",
	CodeVMModeInvalidState:           "VM mode invalid state",
	CodeVMModeMountNameAlreadyExists: "VM mode mount name already exists",
	CodeElevationNeededToMountDisk:   "Elevation needed to mount disk",
	CodeDiskAlreadyAttached:          "Disk already attached",
	CodeDiskAlreadyMounted:           "Disk already mounted",
	CodeDiskMountFailed:              "Disk mount failed",
	CodeDiskUnmountFailed:            "Disk unmount failed",
	CodeWSL2Needed:                   "WSL 2 needed",
	CodeVMModeInvalidMountName:       "VM mode invalid mount name",
	CodeGUIApplicationsDisabled:      "GUI applications disabled",
	CodeDistroOnlyAvailableFromStore: "Distribution only available from store",
	CodeWSLMountNotSupported:         "WSL mount not supported",
	CodeOptionalComponentRequired:    "WSL optional component required",
	CodeVMSwitchNotFound:             "VMSwitch not found",
	CodeVMSwitchNotSet:               "VMSwitch not set",
	CodeNotALinuxDistro:              "Not a Linux distro",
	CodeOSNotSupported:               "OS not supported",
	CodeInstallProcessFailed:         "Install process failed",
	CodeInstallComponentFailed:       "Install component failed",
	CodeDiskMountDisabled:            "Disk mount disabled",
	CodeWSL1Disabled:                 "WSL 1 disabled",
	CodeVMPlatformRequired:           "Virtual machine platform required",
	CodeLocalSystemNotSupported:      "Local system not supported",
	CodeDiskCorrupted:                "Disk corrupted",
	CodeDistributionNameNeeded:       "Distribution name needed",
	CodeInvalidJSON:                  "Invalid JSON",
	CodeVMCrashed:                    "VM crashed",
}

// ErrUnsupportedPlatform is reported when the host operating system has no
// WSL control service to activate.
var ErrUnsupportedPlatform = errors.New("wsl control service is not available on this platform")

// ErrorInfo is the structured diagnostic block returned alongside a failed
// service call.
type ErrorInfo struct {
	Flags    uint32
	Context  uint64
	Message  string
	Warnings string
}

// StatusError is a failed service call: a status code plus the optional
// diagnostic block. Local validation failures use the same representation
// so callers handle both uniformly.
type StatusError struct {
	Code uint32
	Info ErrorInfo
}

func (e *StatusError) Error() string {
	if known, ok := knownErrors[e.Code]; ok {
		return fmt.Sprintf("WSL error: %s", known)
	}
	if e.Info.Message != "" {
		return fmt.Sprintf("unknown WSL error 0x%08x: %s", e.Code, e.Info.Message)
	}
	return fmt.Sprintf("unknown WSL error 0x%08x", e.Code)
}

// NewStatusError builds a StatusError with a preformatted message.
func NewStatusError(code uint32, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Info: ErrorInfo{Message: fmt.Sprintf(format, args...)}}
}

// Kind classifies initialization failures the way callers branch on them.
type Kind int

// Failure classifications.
const (
	KindUnknown Kind = iota
	KindUnsupportedPlatform
	KindUnsupportedService
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedPlatform:
		return "unsupported platform"
	case KindUnsupportedService:
		return "unsupported service version"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Activation on a host without the control service
// yields KindUnsupportedPlatform; a class-not-registered status from a
// host whose service predates the session interface yields
// KindUnsupportedService. Everything else is KindUnknown.
func KindOf(err error) Kind {
	if errors.Is(err, ErrUnsupportedPlatform) {
		return KindUnsupportedPlatform
	}
	var status *StatusError
	if errors.As(err, &status) && status.Code == CodeClassNotRegistered {
		return KindUnsupportedService
	}
	return KindUnknown
}
