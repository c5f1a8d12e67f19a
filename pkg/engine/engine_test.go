package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/rollout/pkg/action"
	"github.com/windowsadmins/rollout/pkg/bindings"
	"github.com/windowsadmins/rollout/pkg/logging"
	"github.com/windowsadmins/rollout/pkg/retry"
	"github.com/windowsadmins/rollout/pkg/txnlog"
)

func TestMain(m *testing.M) {
	logging.Init(logging.LevelError, "")
	os.Exit(m.Run())
}

// fixture is a scratch install: a payload file, a target root and a
// collaborator set with portable bindings and scripted process/host.
type fixture struct {
	sys      *bindings.System
	registry *bindings.MemRegistry
	process  *bindings.FakeProcess
	root     string
	payload  string
	shortcut string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	payload := filepath.Join(dir, "src", "blur.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(payload), 0755))
	require.NoError(t, os.WriteFile(payload, []byte("MZ fake executable"), 0755))

	reg := bindings.NewMemRegistry()
	proc := &bindings.FakeProcess{Running: map[string]bool{}}
	return &fixture{
		sys: &bindings.System{
			FS:       bindings.OSFilesystem{},
			Shortcut: bindings.FileShortcuts{},
			Registry: reg,
			Process:  proc,
			Host:     &bindings.FakeHost{Elevated: true, ArchValue: "x64"},
			UI:       bindings.AutoConfirm{},
		},
		registry: reg,
		process:  proc,
		root:     filepath.Join(dir, "installed", "BLUR"),
		payload:  payload,
		shortcut: filepath.Join(dir, "desktop", "BLUR.lnk"),
	}
}

const uninstallKey = `HKLM\SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall\BLUR`

func (f *fixture) manifest() *action.Manifest {
	return &action.Manifest{
		Product:     "BLUR",
		Version:     "1.4.0",
		ProcessName: "blur.exe",
		Actions: []action.Action{
			{Kind: action.MakeDir, Target: f.root},
			{Kind: action.CopyFile, Source: f.payload, Target: filepath.Join(f.root, "blur.exe")},
			{Kind: action.MakeShortcut, Target: f.shortcut, ShortcutTarget: filepath.Join(f.root, "blur.exe")},
			{Kind: action.SetRegistryValue, Target: uninstallKey, ValueName: "DisplayName", Value: "BLUR"},
		},
	}
}

func (f *fixture) engine(opts Options) *Engine {
	return New(f.sys, opts)
}

func TestInstallSuccess(t *testing.T) {
	f := newFixture(t)

	rec, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)
	require.Len(t, rec.Entries, 4)

	assert.FileExists(t, filepath.Join(f.root, "blur.exe"))
	assert.FileExists(t, f.shortcut)
	v, ok, _ := f.registry.GetValue(uninstallKey, "DisplayName")
	assert.True(t, ok)
	assert.Equal(t, "BLUR", v)

	// Sealed record exists, transaction log does not.
	assert.FileExists(t, txnlog.RecordPath(f.root))
	_, err = os.Stat(txnlog.LogPath(f.root))
	assert.True(t, os.IsNotExist(err))
}

// A failure mid-manifest must leave no trace of the committed prefix:
// copy succeeded, shortcut failed, so the file, directory and registry
// state all return to their pre-install condition.
func TestInstallFailureRollsBackCommittedPrefix(t *testing.T) {
	f := newFixture(t)
	f.sys.Shortcut = bindings.FailingShortcuts{
		Shortcut: bindings.FileShortcuts{},
		FailPath: f.shortcut,
		Err:      errors.New("desktop path locked"),
	}

	_, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.Error(t, err)

	var iErr *InstallError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, action.MakeShortcut, iErr.FailedAction.Kind)
	assert.Nil(t, iErr.RollbackErr)

	assert.NoFileExists(t, filepath.Join(f.root, "blur.exe"))
	assert.NoFileExists(t, f.shortcut)
	_, ok, _ := f.registry.GetValue(uninstallKey, "DisplayName")
	assert.False(t, ok)
	// The engine created the root, so rollback removes it again.
	assert.NoDirExists(t, f.root)
}

func TestReinstallAfterRollbackSucceeds(t *testing.T) {
	f := newFixture(t)
	f.sys.Shortcut = bindings.FailingShortcuts{
		Shortcut: bindings.FileShortcuts{},
		FailPath: f.shortcut,
		Err:      errors.New("transient"),
	}

	_, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.Error(t, err)

	// Same manifest after a clean rollback behaves like a first run.
	f.sys.Shortcut = bindings.FileShortcuts{}
	rec, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)
	assert.Len(t, rec.Entries, 4)
	assert.FileExists(t, filepath.Join(f.root, "blur.exe"))
}

func TestSetRegistryValueRestoresPriorOnRollback(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.SetValue(uninstallKey, "DisplayName", "BLUR (old)"))

	m := f.manifest()
	// Fail after the registry write.
	m.Actions = append(m.Actions, action.Action{
		Kind: action.CopyFile, Source: filepath.Join(f.payload, "missing"), Target: filepath.Join(f.root, "x"),
	})

	_, err := f.engine(Options{}).Install(context.Background(), m, f.root)
	require.Error(t, err)

	v, ok, _ := f.registry.GetValue(uninstallKey, "DisplayName")
	require.True(t, ok)
	assert.Equal(t, "BLUR (old)", v)
}

func TestInstallHashMismatchRollsBack(t *testing.T) {
	f := newFixture(t)
	m := f.manifest()
	m.Actions[1].Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

	_, err := f.engine(Options{}).Install(context.Background(), m, f.root)
	require.Error(t, err)
	var iErr *InstallError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, action.CopyFile, iErr.FailedAction.Kind)
	assert.NoDirExists(t, f.root)
}

func TestInstallCancelledBeforeStartAppliesNothing(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine(Options{}).Install(ctx, f.manifest(), f.root)
	require.Error(t, err)
	var iErr *InstallError
	require.ErrorAs(t, err, &iErr)
	assert.ErrorIs(t, iErr.Cause, context.Canceled)
	assert.NoDirExists(t, f.root)
}

func TestInstallLockedRoot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, lockFileName), []byte("pid=1\n"), 0644))

	_, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	var lockErr *LockError
	require.ErrorAs(t, err, &lockErr)
}

func TestDowngradeRefusedThenForced(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	older := f.manifest()
	older.Version = "1.2.0"
	older.Actions[1].Overwrite = true

	_, err = f.engine(Options{}).Install(context.Background(), older, f.root)
	var dgErr *DowngradeError
	require.ErrorAs(t, err, &dgErr)
	assert.Equal(t, "1.4.0", dgErr.Installed)

	_, err = f.engine(Options{Force: true}).Install(context.Background(), older, f.root)
	require.NoError(t, err)
}

func TestUninstallRemovesEverything(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(Options{})
	rec, err := eng.Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	summary, err := eng.Uninstall(rec)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Reversed)
	assert.Empty(t, summary.AlreadyAbsent)

	assert.NoFileExists(t, f.shortcut)
	assert.NoDirExists(t, f.root)
	_, ok, _ := f.registry.GetValue(uninstallKey, "DisplayName")
	assert.False(t, ok)
}

// Externally removed targets are tolerated: absence is the goal state.
func TestUninstallToleratesAlreadyAbsent(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(Options{})
	rec, err := eng.Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(f.shortcut))

	summary, err := eng.Uninstall(rec)
	require.NoError(t, err)
	assert.Contains(t, summary.AlreadyAbsent, f.shortcut)
	assert.NoDirExists(t, f.root)
}

func TestUninstallTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(Options{})
	rec, err := eng.Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	_, err = eng.Uninstall(rec)
	require.NoError(t, err)

	summary, err := eng.Uninstall(rec)
	require.NoError(t, err)
	assert.Len(t, summary.AlreadyAbsent, 3, "file, shortcut and registry targets are all gone already")
}

func TestUninstallTerminatesRunningProduct(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(Options{})
	rec, err := eng.Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	f.process.Running["blur.exe"] = true
	_, err = eng.Uninstall(rec)
	require.NoError(t, err)
	assert.Contains(t, f.process.Terminated, "blur.exe")
}

// A failed kill is logged but never aborts the uninstall.
func TestUninstallContinuesWhenKillFails(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(Options{})
	rec, err := eng.Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	f.process.Running["blur.exe"] = true
	f.process.TerminateErr = errors.New("access denied")

	_, err = eng.Uninstall(rec)
	require.NoError(t, err)
	assert.NoDirExists(t, f.root)
}

func TestInstallRecoversInterruptedRun(t *testing.T) {
	f := newFixture(t)

	// Simulate a crash: a committed copy in the log, no seal, no rollback.
	require.NoError(t, os.MkdirAll(f.root, 0755))
	orphan := filepath.Join(f.root, "orphan.bin")
	require.NoError(t, os.WriteFile(orphan, []byte("junk"), 0644))

	log, err := txnlog.Create(f.root, f.manifest())
	require.NoError(t, err)
	seq, err := log.AppendPending(action.Action{Kind: action.CopyFile, Source: f.payload, Target: orphan})
	require.NoError(t, err)
	require.NoError(t, log.AppendCommitted(seq, &txnlog.Undo{}))
	require.NoError(t, log.Close())

	rec, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)
	require.Len(t, rec.Entries, 4)
	assert.NoFileExists(t, orphan, "recovery must roll back the crashed run's committed prefix")
}

func TestUninstallReportsPartialFailures(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(Options{})
	rec, err := eng.Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	// Turn the installed file into a non-empty directory so RemoveFile fails.
	target := filepath.Join(f.root, "blur.exe")
	require.NoError(t, os.Remove(target))
	require.NoError(t, os.MkdirAll(filepath.Join(target, "stuck"), 0755))

	summary, err := eng.Uninstall(rec)
	require.Error(t, err)
	var uErr *UninstallError
	require.ErrorAs(t, err, &uErr)
	assert.Contains(t, uErr.Targets(), target)
	// Later (earlier-sequence) entries were still attempted.
	assert.NotNil(t, summary)
	_, ok, _ := f.registry.GetValue(uninstallKey, "DisplayName")
	assert.False(t, ok, "registry reversal must run despite the file failure")
}

// An overwrite copy displaces a pre-existing file; rollback must bring
// that file back, not just delete the replacement.
func TestInstallRollbackRestoresOverwrittenFile(t *testing.T) {
	f := newFixture(t)
	target := filepath.Join(f.root, "blur.exe")
	require.NoError(t, os.MkdirAll(f.root, 0755))
	require.NoError(t, os.WriteFile(target, []byte("ORIGINAL CONTENT"), 0755))

	m := f.manifest()
	m.Actions[1].Overwrite = true
	f.sys.Shortcut = bindings.FailingShortcuts{
		Shortcut: bindings.FileShortcuts{},
		FailPath: f.shortcut,
		Err:      errors.New("desktop path locked"),
	}

	_, err := f.engine(Options{}).Install(context.Background(), m, f.root)
	require.Error(t, err)
	var iErr *InstallError
	require.ErrorAs(t, err, &iErr)
	require.Nil(t, iErr.RollbackErr)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "ORIGINAL CONTENT", string(data), "displaced file must survive rollback")
	assert.NoDirExists(t, filepath.Join(f.root, action.RecordDirName))
}

func TestInstallOverwriteClearsBackupOnSeal(t *testing.T) {
	f := newFixture(t)
	target := filepath.Join(f.root, "blur.exe")
	require.NoError(t, os.MkdirAll(f.root, 0755))
	require.NoError(t, os.WriteFile(target, []byte("ORIGINAL CONTENT"), 0755))

	m := f.manifest()
	m.Actions[1].Overwrite = true

	rec, err := f.engine(Options{}).Install(context.Background(), m, f.root)
	require.NoError(t, err)

	require.True(t, rec.Entries[1].Undo.Replaced)
	assert.NoDirExists(t, filepath.Join(f.root, action.RecordDirName, "backup"))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "MZ fake executable", string(data))
}

// When rollback itself leaves residue the transaction log must survive as
// the durable record of what remains, and the failure must not be retried
// blindly. A later run's recovery finishes the rollback.
func TestInstallKeepsLogWhenRollbackIncomplete(t *testing.T) {
	f := newFixture(t)
	f.sys.Registry = bindings.FailingRegistry{
		Registry:  f.registry,
		FailValue: "DisplayName",
		Err:       errors.New("access denied"),
	}

	m := f.manifest()
	// Fail after the registry write so its reversal is exercised.
	m.Actions = append(m.Actions, action.Action{
		Kind: action.CopyFile, Source: filepath.Join(f.payload, "missing"), Target: filepath.Join(f.root, "x"),
	})

	_, err := f.engine(Options{}).Install(context.Background(), m, f.root)
	require.Error(t, err)

	var iErr *InstallError
	require.ErrorAs(t, err, &iErr)
	require.NotNil(t, iErr.RollbackErr)
	assert.Contains(t, iErr.RollbackErr.Targets(), uninstallKey)

	var nr retry.NonRetryableError
	assert.ErrorAs(t, err, &nr, "an incomplete rollback must not be retried")
	assert.FileExists(t, txnlog.LogPath(f.root), "the surviving artifacts must stay on durable record")

	// Once the obstruction clears, the next run's recovery finishes the
	// rollback and the install goes through.
	f.sys.Registry = f.registry
	rec, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)
	assert.Len(t, rec.Entries, 4)
	v, ok, _ := f.registry.GetValue(uninstallKey, "DisplayName")
	require.True(t, ok)
	assert.Equal(t, "BLUR", v)
}

// A crash between executing an action and committing it leaves a pending
// entry whose effect is applied; recovery reverses it best-effort.
func TestInstallRecoveryReversesPendingEntry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.root, 0755))
	stray := filepath.Join(f.root, "pending.bin")

	log, err := txnlog.Create(f.root, f.manifest())
	require.NoError(t, err)
	_, err = log.AppendPending(action.Action{Kind: action.CopyFile, Source: f.payload, Target: stray})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stray, []byte("MZ fake executable"), 0755))
	require.NoError(t, log.Close())

	rec, err := f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)
	require.Len(t, rec.Entries, 4)
	assert.NoFileExists(t, stray)
}

func TestInstallRecoveryRestoresPendingOverwriteFromBackup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.root, 0755))
	target := filepath.Join(f.root, "replaced.bin")

	log, err := txnlog.Create(f.root, f.manifest())
	require.NoError(t, err)
	seq, err := log.AppendPending(action.Action{
		Kind: action.CopyFile, Source: f.payload, Target: target, Overwrite: true,
	})
	require.NoError(t, err)
	backup := txnlog.BackupPath(f.root, seq)
	require.NoError(t, os.MkdirAll(filepath.Dir(backup), 0755))
	require.NoError(t, os.WriteFile(backup, []byte("ORIGINAL CONTENT"), 0755))
	require.NoError(t, os.WriteFile(target, []byte("MZ fake executable"), 0755))
	require.NoError(t, log.Close())

	_, err = f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "ORIGINAL CONTENT", string(data))
}

// A pending registry write is only provably the crashed run's effect when
// the value on the machine matches what it was writing.
func TestInstallRecoveryReversesPendingRegistryValueOnlyWhenOwned(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.root, 0755))
	key := `HKLM\SOFTWARE\BLUR`
	require.NoError(t, f.registry.SetValue(key, "Mine", "written"))
	require.NoError(t, f.registry.SetValue(key, "Foreign", "somebody else"))

	log, err := txnlog.Create(f.root, f.manifest())
	require.NoError(t, err)
	_, err = log.AppendPending(action.Action{Kind: action.SetRegistryValue, Target: key, ValueName: "Mine", Value: "written"})
	require.NoError(t, err)
	_, err = log.AppendPending(action.Action{Kind: action.SetRegistryValue, Target: key, ValueName: "Foreign", Value: "never landed"})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	_, err = f.engine(Options{}).Install(context.Background(), f.manifest(), f.root)
	require.NoError(t, err)

	_, ok, _ := f.registry.GetValue(key, "Mine")
	assert.False(t, ok, "the crashed run's own value is cleaned up")
	v, ok, _ := f.registry.GetValue(key, "Foreign")
	require.True(t, ok, "a value the crashed run never wrote is left alone")
	assert.Equal(t, "somebody else", v)
}

func TestInstallRegistersUninstallEntry(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(Options{})

	m := f.manifest()
	m.RegisterUninstall = true

	rec, err := eng.Install(context.Background(), m, f.root)
	require.NoError(t, err)
	require.Len(t, rec.Entries, 9)

	v, ok, _ := f.registry.GetValue(uninstallKey, "DisplayVersion")
	require.True(t, ok)
	assert.Equal(t, "1.4.0", v)
	v, ok, _ = f.registry.GetValue(uninstallKey, "UninstallString")
	require.True(t, ok)
	assert.Contains(t, v, action.RecordFileName)
	v, ok, _ = f.registry.GetValue(uninstallKey, "DisplayIcon")
	require.True(t, ok)
	assert.Contains(t, v, "blur.exe")

	_, err = eng.Uninstall(rec)
	require.NoError(t, err)
	_, ok, _ = f.registry.GetValue(uninstallKey, "DisplayVersion")
	assert.False(t, ok)
}
