// pkg/engine/engine.go - the transactional install/uninstall engine.
//
// Install walks the manifest in order, logging every action attempt before
// and after it runs. The first failure stops the walk and replays the
// committed prefix in reverse, so an install either completes fully or
// leaves the machine exactly as it was. Uninstall is the same reverse
// replay applied to a sealed install record, best-effort across entries.

package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/windowsadmins/rollout/pkg/action"
	"github.com/windowsadmins/rollout/pkg/bindings"
	"github.com/windowsadmins/rollout/pkg/logging"
	"github.com/windowsadmins/rollout/pkg/txnlog"
)

// Options tune a run. The zero value is a safe default.
type Options struct {
	// Force allows installing over a newer recorded version.
	Force bool
	// LockWait is how long to wait for the install root lock.
	LockWait time.Duration
	// Progress, when set, receives a line per action as it commits.
	Progress func(seq uint64, total int, a action.Action)
}

// Engine executes manifests against a collaborator set. One action at a
// time, one run at a time per install root.
type Engine struct {
	sys  *bindings.System
	opts Options
}

// New returns an Engine over the given collaborators.
func New(sys *bindings.System, opts Options) *Engine {
	return &Engine{sys: sys, opts: opts}
}

// Install applies the manifest to the install root. On success it returns
// the sealed install record. On any failure it rolls back the committed
// prefix and returns an *InstallError; the machine state is then identical
// to the state before the call unless InstallError.RollbackErr says
// otherwise.
func (e *Engine) Install(ctx context.Context, m *action.Manifest, root string) (*txnlog.InstallRecord, error) {
	lock, err := acquireLock(root, e.opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	if err := e.recoverInterrupted(root); err != nil {
		return nil, err
	}

	if err := e.checkDowngrade(m, root); err != nil {
		return nil, err
	}

	log, err := txnlog.Create(root, m)
	if err != nil {
		return nil, err
	}

	actions := m.Actions
	if m.RegisterUninstall {
		extra := action.UninstallEntryActions(m.Product, m.Version, root, m.ExecutablePath())
		actions = append(actions[:len(actions):len(actions)], extra...)
	}

	logging.Info("Starting install", "product", m.Product, "version", m.Version, "root", root, "actions", len(actions))

	for _, a := range actions {
		// Cancellation between actions is an induced failure at this
		// boundary: same rollback path as a genuine one.
		if err := ctx.Err(); err != nil {
			return nil, e.failInstall(log, lock, a, 0, err)
		}

		seq, err := log.AppendPending(a)
		if err != nil {
			return nil, e.failInstall(log, lock, a, seq, err)
		}

		undo, err := e.execute(a, root, seq)
		if err != nil {
			if lerr := log.AppendFailed(seq, err); lerr != nil {
				logging.Error("Failed to record action failure", "seq", seq, "error", lerr)
			}
			return nil, e.failInstall(log, lock, a, seq, err)
		}

		if err := log.AppendCommitted(seq, undo); err != nil {
			// The effect is applied but not durably committed; undo it so
			// the log and the world stay in agreement.
			if _, rerr := e.reverse(txnlog.RecordEntry{Seq: seq, Action: a, Undo: undo}); rerr != nil {
				logging.Error("Failed to undo uncommitted action", "seq", seq, "error", rerr)
			}
			return nil, e.failInstall(log, lock, a, seq, err)
		}

		logging.Info("Committed", "seq", seq, "action", a.String())
		if e.opts.Progress != nil {
			e.opts.Progress(seq, len(actions), a)
		}
	}

	rec, err := log.Seal()
	if err != nil {
		return nil, e.failInstall(log, lock, action.Action{}, 0, fmt.Errorf("sealing install record: %w", err))
	}

	logging.Info("Install complete", "product", m.Product, "version", m.Version)
	return rec, nil
}

// failInstall rolls back the committed prefix and packages the failure.
// A complete rollback removes the transaction log and the bookkeeping
// directory; an incomplete one keeps both on disk, so the surviving
// artifacts stay recoverable and a later run can finish the job.
func (e *Engine) failInstall(log *txnlog.Log, lock *installLock, failed action.Action, seq uint64, cause error) error {
	logging.Error("Install failed, rolling back", "action", failed.String(), "error", cause)

	rollbackErr := e.reverseAll(log.CommittedEntries(), nil)
	root := log.Head().InstallRoot

	ierr := &InstallError{FailedAction: failed, Seq: seq, Cause: cause, RollbackErr: rollbackErr}
	if rollbackErr != nil {
		if err := log.Close(); err != nil {
			logging.Warn("Failed to close transaction log", "error", err)
		}
		logging.Error("Rollback incomplete, keeping transaction log",
			"path", txnlog.LogPath(root), "remaining", len(rollbackErr.Partial))
		return &RollbackIncompleteError{Inner: ierr}
	}

	if err := log.Discard(); err != nil {
		logging.Warn("Failed to discard transaction log", "error", err)
	}
	removeRecordDir(root)
	if lock.createdRoot {
		lock.release()
		// Only an empty root is removed; os.Remove refuses otherwise.
		os.Remove(root)
	}
	return ierr
}

// recoverInterrupted rolls back the committed prefix of a transaction log
// left behind by a crashed run, restoring the pre-install state before a
// new run begins.
func (e *Engine) recoverInterrupted(root string) error {
	if _, err := os.Stat(txnlog.LogPath(root)); os.IsNotExist(err) {
		return nil
	}

	log, err := txnlog.Open(root)
	if err != nil {
		return fmt.Errorf("recovering interrupted install: %w", err)
	}
	logging.Warn("Found interrupted install, rolling back",
		"product", log.Head().Product, "run_id", log.Head().RunID)

	e.reversePending(log, root)
	if uerr := e.reverseAll(log.CommittedEntries(), nil); uerr != nil {
		log.Close()
		return fmt.Errorf("recovering interrupted install: %w", uerr)
	}
	if err := log.Discard(); err != nil {
		return fmt.Errorf("discarding recovered transaction log: %w", err)
	}
	removeRecordDir(root)
	return nil
}

// reversePending cleans up entries a crash left pending: the crash may
// have landed between executing the action and committing it, leaving the
// effect applied with no committed line. Reversal here is best-effort;
// missing targets are already tolerated, so attempting it is safe.
func (e *Engine) reversePending(log *txnlog.Log, root string) {
	pending := log.PendingEntries()
	for i := len(pending) - 1; i >= 0; i-- {
		entry := pending[i]
		// The captured undo state died with the crashed process; synthesize
		// what the on-disk remains can tell us.
		switch entry.Action.Kind {
		case action.CopyFile:
			if backup := txnlog.BackupPath(root, entry.Seq); e.sys.FS.Exists(backup) {
				entry.Undo = &txnlog.Undo{Replaced: true, BackupPath: backup}
			}
		case action.MakeDir:
			entry.Undo = &txnlog.Undo{DirCreated: true}
		case action.SetRegistryValue:
			// Only a value that matches what the crashed run was writing is
			// provably its effect; anything else is not ours to touch.
			cur, ok, err := e.sys.Registry.GetValue(entry.Action.Target, entry.Action.ValueName)
			if err != nil || !ok || cur != entry.Action.Value {
				continue
			}
		}
		if _, err := e.reverse(entry); err != nil {
			logging.Warn("Could not reverse pending entry",
				"seq", entry.Seq, "action", entry.Action.String(), "error", err)
		}
	}
}

// checkDowngrade refuses to install an older version over a sealed record.
func (e *Engine) checkDowngrade(m *action.Manifest, root string) error {
	rec, err := txnlog.LoadRecord(txnlog.RecordPath(root))
	if err != nil {
		// No usable record means nothing to protect.
		return nil
	}
	if e.opts.Force {
		logging.Warn("Existing install found, force flag set", "installed", rec.Version, "requested", m.Version)
		return nil
	}
	installed, err1 := goversion.NewVersion(rec.Version)
	requested, err2 := goversion.NewVersion(m.Version)
	if err1 != nil || err2 != nil {
		logging.Debug("Version parse error, skipping downgrade check",
			"installed", rec.Version, "requested", m.Version)
		return nil
	}
	if requested.LessThan(installed) {
		return &DowngradeError{Installed: rec.Version, Requested: m.Version}
	}
	return nil
}

// Summary reports what an uninstall run did.
type Summary struct {
	Reversed      int
	AlreadyAbsent []string
}

// Uninstall replays a sealed install record in reverse. It terminates a
// running product instance first, then attempts every entry regardless of
// individual failures, returning an *UninstallError listing what survived.
func (e *Engine) Uninstall(rec *txnlog.InstallRecord) (*Summary, error) {
	lock, err := acquireLock(rec.InstallRoot, e.opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	logging.Info("Starting uninstall", "product", rec.Product, "version", rec.Version, "root", rec.InstallRoot)

	e.stopProduct(rec.ProcessName)

	summary := &Summary{}
	uerr := e.reverseAll(rec.Entries, summary)
	if uerr != nil {
		logging.Warn("Uninstall left artifacts behind", "count", len(uerr.Partial))
		return summary, uerr
	}

	removeRecordDir(rec.InstallRoot)
	lock.release()
	// Remove the root itself if the uninstall emptied it.
	os.Remove(rec.InstallRoot)

	logging.Info("Uninstall complete", "product", rec.Product)
	return summary, nil
}

// stopProduct force-terminates a running product instance before its files
// are removed. A failed kill is logged and uninstall continues; the file
// removals that then fail will surface in the partial-failure list.
func (e *Engine) stopProduct(name string) {
	if name == "" || !e.sys.Process.IsRunning(name) {
		return
	}
	if e.sys.UI != nil {
		title := "Uninstall"
		text := fmt.Sprintf("%s is running and must be closed to continue. Close it now?", name)
		if !e.sys.UI.Confirm(title, text) {
			logging.Warn("User declined to close running product", "process", name)
			return
		}
	}
	if err := e.sys.Process.Terminate(name); err != nil {
		logging.Warn("Failed to terminate running product, continuing", "process", name, "error", err)
	}
}

// reverseAll applies reversals in strict reverse sequence order, collecting
// failures rather than stopping. summary may be nil.
func (e *Engine) reverseAll(entries []txnlog.RecordEntry, summary *Summary) *UninstallError {
	var failures []EntryFailure
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		result, err := e.reverse(entry)
		if err != nil {
			logging.Error("Failed to reverse entry", "seq", entry.Seq, "action", entry.Action.String(), "error", err)
			failures = append(failures, EntryFailure{Seq: entry.Seq, Action: entry.Action, Err: err})
			continue
		}
		if summary != nil {
			if result == alreadyAbsent {
				logging.Info("Target already absent", "seq", entry.Seq, "action", entry.Action.String())
				summary.AlreadyAbsent = append(summary.AlreadyAbsent, entry.Action.Target)
			} else {
				summary.Reversed++
			}
		}
	}
	if len(failures) > 0 {
		return &UninstallError{Partial: failures}
	}
	return nil
}
