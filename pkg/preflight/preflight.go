// pkg/preflight/preflight.go - environment validation before any mutation.
//
// Every check runs to completion even when an earlier one fails, so a
// single run reports the full set of problems instead of the first.

package preflight

import (
	"fmt"
	"strings"

	"github.com/windowsadmins/rollout/pkg/action"
	"github.com/windowsadmins/rollout/pkg/bindings"
	"github.com/windowsadmins/rollout/pkg/logging"
)

// FailureKind identifies which precondition was violated.
type FailureKind string

const (
	ArchMismatch          FailureKind = "ArchMismatch"
	InsufficientPrivilege FailureKind = "InsufficientPrivilege"
	ProductRunning        FailureKind = "ProductRunning"
	InsufficientSpace     FailureKind = "InsufficientSpace"
	PathNotWritable       FailureKind = "PathNotWritable"
)

// Failure is one violated precondition.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Error aggregates every failed check of a preflight run.
type Error struct {
	Failures []Failure
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return "preflight failed: " + strings.Join(parts, "; ")
}

// NonRetryable marks preflight failures as fatal for retry wrappers; the
// environment will not fix itself between attempts.
func (e *Error) NonRetryable() {}

// Has reports whether the error contains a failure of the given kind.
func (e *Error) Has(kind FailureKind) bool {
	for _, f := range e.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Environment is the set of preconditions a manifest demands of the host.
type Environment struct {
	RequiredArch     []string
	RequireElevation bool
	ProcessName      string
	InstallRoot      string
	PayloadBytes     uint64
	SpaceSlackBytes  uint64
}

// EnvironmentFor derives the precondition set from a manifest and target.
func EnvironmentFor(m *action.Manifest, installRoot string, slack uint64) Environment {
	return Environment{
		RequiredArch:     m.SupportedArch,
		RequireElevation: m.RequireElevation,
		ProcessName:      m.ProcessName,
		InstallRoot:      installRoot,
		PayloadBytes:     m.PayloadBytes(),
		SpaceSlackBytes:  slack,
	}
}

// Check validates the environment without side effects. It returns nil when
// every precondition holds, or an *Error listing all that do not.
func Check(sys *bindings.System, env Environment) error {
	var failures []Failure

	if len(env.RequiredArch) > 0 {
		hostArch := sys.Host.Arch()
		ok := false
		for _, a := range env.RequiredArch {
			if bindings.NormalizeArch(a) == hostArch {
				ok = true
				break
			}
		}
		if !ok {
			failures = append(failures, Failure{
				Kind:   ArchMismatch,
				Detail: fmt.Sprintf("host is %s, manifest supports %v", hostArch, env.RequiredArch),
			})
		}
	}

	if env.RequireElevation && !sys.Host.IsElevated() {
		failures = append(failures, Failure{
			Kind:   InsufficientPrivilege,
			Detail: "administrative privileges are required",
		})
	}

	if env.ProcessName != "" && sys.Process.IsRunning(env.ProcessName) {
		failures = append(failures, Failure{
			Kind:   ProductRunning,
			Detail: fmt.Sprintf("%s is currently running; close it and retry", env.ProcessName),
		})
	}

	if !sys.FS.CanWrite(writableProbeDir(sys, env.InstallRoot)) {
		failures = append(failures, Failure{
			Kind:   PathNotWritable,
			Detail: fmt.Sprintf("cannot write under %s", env.InstallRoot),
		})
	}

	need := env.PayloadBytes + env.SpaceSlackBytes
	free, err := sys.FS.FreeSpace(env.InstallRoot)
	if err != nil {
		logging.Warn("Free space query failed, skipping space check", "path", env.InstallRoot, "error", err)
	} else if free < need {
		failures = append(failures, Failure{
			Kind:   InsufficientSpace,
			Detail: fmt.Sprintf("need %d bytes, %d available", need, free),
		})
	}

	if len(failures) > 0 {
		return &Error{Failures: failures}
	}
	return nil
}

// writableProbeDir picks the directory to probe for writability: the
// install root if it exists, otherwise its nearest existing ancestor.
func writableProbeDir(sys *bindings.System, root string) string {
	if sys.FS.Exists(root) {
		return root
	}
	return bindings.NearestExistingDir(root)
}
