// pkg/engine/errors.go - error taxonomy for install and uninstall runs.

package engine

import (
	"fmt"
	"strings"

	"github.com/windowsadmins/rollout/pkg/action"
)

// InstallError reports the action that stopped an install. By the time the
// caller sees it, every previously committed action has been rolled back;
// RollbackErr is non-nil only when that rollback itself left residue.
type InstallError struct {
	FailedAction action.Action
	Seq          uint64
	Cause        error
	RollbackErr  *UninstallError
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("install failed at action %d (%s): %v", e.Seq, e.FailedAction, e.Cause)
	if e.RollbackErr != nil {
		msg += fmt.Sprintf("; rollback incomplete: %v", e.RollbackErr)
	}
	return msg
}

func (e *InstallError) Unwrap() error { return e.Cause }

// EntryFailure is one log entry whose reversal failed.
type EntryFailure struct {
	Seq    uint64
	Action action.Action
	Err    error
}

// UninstallError aggregates per-entry reversal failures. Uninstall is
// best-effort: it attempts every entry and reports what remains for manual
// removal rather than stopping.
type UninstallError struct {
	Partial []EntryFailure
}

func (e *UninstallError) Error() string {
	parts := make([]string, len(e.Partial))
	for i, f := range e.Partial {
		parts[i] = fmt.Sprintf("entry %d (%s): %v", f.Seq, f.Action, f.Err)
	}
	return fmt.Sprintf("uninstall left %d artifact(s): %s", len(e.Partial), strings.Join(parts, "; "))
}

// Targets lists the artifacts that need manual removal.
func (e *UninstallError) Targets() []string {
	out := make([]string, len(e.Partial))
	for i, f := range e.Partial {
		out[i] = f.Action.Target
	}
	return out
}

// RollbackIncompleteError wraps an install failure whose rollback left
// artifacts behind. Re-running install on top of residue compounds the
// damage, so the wrapper is non-retryable; the transaction log is kept on
// disk and the next run's recovery finishes the rollback instead.
type RollbackIncompleteError struct {
	Inner *InstallError
}

func (e *RollbackIncompleteError) Error() string { return e.Inner.Error() }
func (e *RollbackIncompleteError) Unwrap() error { return e.Inner }

// NonRetryable: the residue must be cleared before another attempt.
func (e *RollbackIncompleteError) NonRetryable() {}

// LockError means another run holds the install root.
type LockError struct {
	Path string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("install root is locked by another run (%s)", e.Path)
}

// DowngradeError means the manifest's version is older than what the
// existing install record says is present.
type DowngradeError struct {
	Installed string
	Requested string
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("refusing to downgrade from %s to %s (use force to override)", e.Installed, e.Requested)
}

// NonRetryable: a downgrade refusal never resolves on retry.
func (e *DowngradeError) NonRetryable() {}
