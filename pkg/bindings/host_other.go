//go:build !windows

package bindings

import (
	"os"
	"runtime"
)

// PosixHost implements Host for development builds off-Windows.
type PosixHost struct{}

func (PosixHost) IsElevated() bool {
	return os.Geteuid() == 0
}

func (PosixHost) Arch() string {
	return NormalizeArch(runtime.GOARCH)
}
