//go:build windows

// pkg/bindings/host_windows.go - elevation and architecture queries.

package bindings

import (
	"runtime"
	"strings"

	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows"

	"github.com/windowsadmins/rollout/pkg/logging"
)

// WindowsHost implements Host with the Windows token and WMI.
type WindowsHost struct{}

// IsElevated verifies whether the current process token is a member of the
// builtin Administrators group.
func (WindowsHost) IsElevated() bool {
	var adminSid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&adminSid)
	if err != nil {
		logging.Error("SID allocation error", "error", err)
		return false
	}
	defer windows.FreeSid(adminSid)

	token := windows.Token(0)
	member, err := token.IsMember(adminSid)
	if err != nil {
		logging.Error("Token membership check failed", "error", err)
		return false
	}
	return member
}

type win32OperatingSystem struct {
	OSArchitecture string
}

// Arch reports the OS architecture via WMI, falling back to the build arch
// when the query fails (e.g. WMI service stopped).
func (WindowsHost) Arch() string {
	var out []win32OperatingSystem
	err := wmi.Query("SELECT OSArchitecture FROM Win32_OperatingSystem", &out)
	if err == nil && len(out) > 0 {
		arch := strings.ToLower(out[0].OSArchitecture)
		switch {
		case strings.Contains(arch, "arm"):
			return "arm64"
		case strings.Contains(arch, "64"):
			return "x64"
		case strings.Contains(arch, "32"):
			return "x86"
		}
	}
	if err != nil {
		logging.Debug("WMI architecture query failed, using build arch", "error", err)
	}
	return NormalizeArch(runtime.GOARCH)
}
