// pkg/engine/execute.go - forward execution and reverse application of
// single actions.

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/rollout/pkg/action"
	"github.com/windowsadmins/rollout/pkg/icon"
	"github.com/windowsadmins/rollout/pkg/logging"
	"github.com/windowsadmins/rollout/pkg/txnlog"
)

// execute applies one action and returns the undo state reverse-application
// will need. On error the action's own partial effects have already been
// cleaned up, so the filesystem still reflects only the committed prefix.
func (e *Engine) execute(a action.Action, root string, seq uint64) (*txnlog.Undo, error) {
	switch a.Kind {
	case action.CopyFile:
		return e.executeCopy(a, root, seq)
	case action.MakeDir:
		created, err := e.sys.FS.MakeDir(a.Target)
		if err != nil {
			return nil, err
		}
		return &txnlog.Undo{DirCreated: created}, nil
	case action.MakeShortcut:
		return e.executeShortcut(a, root)
	case action.SetRegistryValue:
		return e.executeSetValue(a)
	case action.DeleteRegistryKey:
		return e.executeDeleteKey(a)
	default:
		return nil, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func (e *Engine) executeCopy(a action.Action, root string, seq uint64) (*txnlog.Undo, error) {
	undo := &txnlog.Undo{}
	if e.sys.FS.Exists(a.Target) {
		if !a.Overwrite {
			return nil, fmt.Errorf("destination %s already exists", a.Target)
		}
		// Preserve the displaced file so reverse-application can put it
		// back, the same way set_registry_value records its prior value.
		backup := txnlog.BackupPath(root, seq)
		if err := e.sys.FS.Copy(a.Target, backup); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", a.Target, err)
		}
		undo.Replaced = true
		undo.BackupPath = backup
	}
	if err := e.sys.FS.Copy(a.Source, a.Target); err != nil {
		e.undoCopy(undo, a.Target)
		return nil, err
	}
	if a.Hash != "" {
		got, err := e.sys.FS.SHA256(a.Target)
		if err != nil {
			e.undoCopy(undo, a.Target)
			return nil, fmt.Errorf("hashing %s: %w", a.Target, err)
		}
		if !strings.EqualFold(got, a.Hash) {
			e.undoCopy(undo, a.Target)
			return nil, fmt.Errorf("hash mismatch for %s: got %s want %s", a.Target, got, a.Hash)
		}
	}
	return undo, nil
}

// undoCopy cleans up a copy that failed before committing: the displaced
// file comes back from its backup, or the fresh target is removed.
func (e *Engine) undoCopy(undo *txnlog.Undo, target string) {
	if undo.BackupPath != "" && e.sys.FS.Exists(undo.BackupPath) {
		if err := e.sys.FS.Copy(undo.BackupPath, target); err != nil {
			logging.Error("Failed to restore displaced file", "path", target, "error", err)
			return
		}
		e.sys.FS.RemoveFile(undo.BackupPath)
		return
	}
	e.sys.FS.RemoveFile(target)
}

func (e *Engine) executeShortcut(a action.Action, root string) (*txnlog.Undo, error) {
	iconRef := a.Icon
	if strings.EqualFold(filepath.Ext(iconRef), ".png") {
		base := strings.TrimSuffix(filepath.Base(iconRef), filepath.Ext(iconRef))
		icoPath := filepath.Join(root, action.RecordDirName, "icons", base+".ico")
		if err := icon.ConvertPNG(iconRef, icoPath, nil); err != nil {
			return nil, fmt.Errorf("converting shortcut icon: %w", err)
		}
		iconRef = icoPath
	}
	if err := e.sys.Shortcut.Create(a.Target, a.ShortcutTarget, a.Arguments, iconRef); err != nil {
		return nil, err
	}
	return &txnlog.Undo{}, nil
}

func (e *Engine) executeSetValue(a action.Action) (*txnlog.Undo, error) {
	undo := &txnlog.Undo{}
	prior, ok, err := e.sys.Registry.GetValue(a.Target, a.ValueName)
	if err != nil {
		return nil, fmt.Errorf("reading prior value of %s\\%s: %w", a.Target, a.ValueName, err)
	}
	if ok {
		undo.PriorValue = &prior
	}
	if err := e.sys.Registry.SetValue(a.Target, a.ValueName, a.Value); err != nil {
		return nil, err
	}
	return undo, nil
}

func (e *Engine) executeDeleteKey(a action.Action) (*txnlog.Undo, error) {
	undo := &txnlog.Undo{}
	exists, err := e.sys.Registry.KeyExists(a.Target)
	if err != nil {
		return nil, err
	}
	if exists {
		values, err := e.sys.Registry.KeyValues(a.Target)
		if err != nil {
			return nil, fmt.Errorf("recording values of %s: %w", a.Target, err)
		}
		undo.KeyExisted = true
		undo.PriorValues = values
		if err := e.sys.Registry.DeleteKey(a.Target); err != nil {
			return nil, err
		}
	}
	return undo, nil
}

// reverseResult classifies one reversal.
type reverseResult int

const (
	reversed reverseResult = iota
	alreadyAbsent
)

// reverse undoes one committed entry. Missing targets are not errors: the
// forward effect is already gone, which is the end state reversal wants.
func (e *Engine) reverse(entry txnlog.RecordEntry) (reverseResult, error) {
	a := entry.Action
	undo := entry.Undo
	if undo == nil {
		undo = &txnlog.Undo{}
	}

	switch a.Kind {
	case action.CopyFile:
		if undo.BackupPath != "" && e.sys.FS.Exists(undo.BackupPath) {
			// Restore the displaced file. The backup stays until the
			// record directory is cleared, so a re-run of an interrupted
			// reversal restores again instead of deleting.
			return reversed, e.sys.FS.Copy(undo.BackupPath, a.Target)
		}
		if !e.sys.FS.Exists(a.Target) {
			return alreadyAbsent, nil
		}
		return reversed, e.sys.FS.RemoveFile(a.Target)

	case action.MakeDir:
		if !undo.DirCreated {
			// The directory predated the install; it is not ours to remove.
			return reversed, nil
		}
		if !e.sys.FS.Exists(a.Target) {
			return alreadyAbsent, nil
		}
		if err := e.sys.FS.RemoveDir(a.Target); err != nil {
			// A created directory that has since gained content is left in
			// place: removal is defined as only-if-empty.
			logging.Warn("Created directory not empty, leaving in place", "path", a.Target)
			return reversed, nil
		}
		return reversed, nil

	case action.MakeShortcut:
		if !e.sys.Shortcut.Exists(a.Target) {
			return alreadyAbsent, nil
		}
		return reversed, e.sys.Shortcut.Delete(a.Target)

	case action.SetRegistryValue:
		if undo.PriorValue != nil {
			return reversed, e.sys.Registry.SetValue(a.Target, a.ValueName, *undo.PriorValue)
		}
		_, ok, err := e.sys.Registry.GetValue(a.Target, a.ValueName)
		if err != nil {
			return reversed, err
		}
		if !ok {
			return alreadyAbsent, nil
		}
		return reversed, e.sys.Registry.DeleteValue(a.Target, a.ValueName)

	case action.DeleteRegistryKey:
		if !undo.KeyExisted {
			return reversed, nil
		}
		if err := e.sys.Registry.CreateKey(a.Target); err != nil {
			return reversed, err
		}
		for name, value := range undo.PriorValues {
			if err := e.sys.Registry.SetValue(a.Target, name, value); err != nil {
				return reversed, err
			}
		}
		return reversed, nil

	default:
		return reversed, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// removeRecordDir clears the .rollout bookkeeping directory under a root.
func removeRecordDir(root string) {
	os.RemoveAll(filepath.Join(root, action.RecordDirName))
}
