//go:build windows

// pkg/bindings/shortcut_windows.go - .lnk shortcuts via the WScript.Shell
// COM object, driven through PowerShell with a hidden window.

package bindings

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// LnkShortcuts implements Shortcut with real Windows .lnk files.
type LnkShortcuts struct{}

var commandPs1 = filepath.Join(os.Getenv("WINDIR"), "system32", "WindowsPowershell", "v1.0", "powershell.exe")

func runHiddenPS(script string) error {
	cmd := exec.Command(commandPs1, "-NoProfile", "-NonInteractive", "-Command", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("powershell failed: %w | stderr: %s", err, stderr.String())
	}
	return nil
}

// psQuote single-quotes a string for PowerShell, doubling embedded quotes.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (LnkShortcuts) Create(path, target, args, icon string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("$ws = New-Object -ComObject WScript.Shell; ")
	sb.WriteString(fmt.Sprintf("$s = $ws.CreateShortcut(%s); ", psQuote(path)))
	sb.WriteString(fmt.Sprintf("$s.TargetPath = %s; ", psQuote(target)))
	if args != "" {
		sb.WriteString(fmt.Sprintf("$s.Arguments = %s; ", psQuote(args)))
	}
	if icon != "" {
		sb.WriteString(fmt.Sprintf("$s.IconLocation = %s; ", psQuote(icon)))
	}
	sb.WriteString(fmt.Sprintf("$s.WorkingDirectory = %s; ", psQuote(filepath.Dir(target))))
	sb.WriteString("$s.Save()")
	return runHiddenPS(sb.String())
}

func (LnkShortcuts) Delete(path string) error {
	return os.Remove(path)
}

func (LnkShortcuts) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
