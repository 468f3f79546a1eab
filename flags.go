package wsl

import "github.com/wslbridge/wsl/lxss"

// Version identifies a distribution's execution generation.
type Version = lxss.Version

// Known distribution versions.
const (
	WSL1 = lxss.VersionWSL1
	WSL2 = lxss.VersionWSL2
)

// ExportFlags control distribution export.
type ExportFlags uint32

// Export flag bits, matching the service's wire encoding.
const (
	ExportVHD ExportFlags = 1 << iota
	ExportGzip
	ExportXzip
	ExportVerbose
)

// ImportFlags control distribution registration.
type ImportFlags uint32

// Import flag bits, matching the service's wire encoding.
const (
	ImportVHD ImportFlags = 1 << iota
	ImportCreateShortcut
	// ImportNoOOBE disables the distribution's out-of-box-experience
	// script on first launch.
	ImportNoOOBE
	ImportFixedVHD
)
