// pkg/bindings/process.go - running-instance detection and termination.

package bindings

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/rollout/pkg/logging"
)

// SystemProcess implements Process over the live process table.
type SystemProcess struct{}

func matchProcess(proc *process.Process, name string) bool {
	pname, err := proc.Name()
	if err != nil {
		return false
	}
	clean := strings.ToLower(name)
	pname = strings.ToLower(pname)

	if strings.HasSuffix(clean, ".exe") {
		return pname == clean
	}
	return pname == clean || pname == clean+".exe"
}

func (SystemProcess) IsRunning(name string) bool {
	procs, err := process.Processes()
	if err != nil {
		logging.Error("Failed to get process list", "error", err)
		return false
	}
	for _, proc := range procs {
		if matchProcess(proc, name) {
			logging.Debug("Found running process", "name", name, "pid", proc.Pid)
			return true
		}
	}
	return false
}

func (SystemProcess) Terminate(name string) error {
	procs, err := process.Processes()
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}
	var lastErr error
	killed := 0
	for _, proc := range procs {
		if !matchProcess(proc, name) {
			continue
		}
		if err := proc.Kill(); err != nil {
			logging.Warn("Failed to kill process", "name", name, "pid", proc.Pid, "error", err)
			lastErr = err
			continue
		}
		killed++
	}
	logging.Debug("Terminated matching processes", "name", name, "count", killed)
	return lastErr
}
