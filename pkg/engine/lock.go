// pkg/engine/lock.go - exclusive ownership of an install root.
//
// The transaction log is single-owner; a lock file directly under the
// install root keeps a second install or uninstall run out for the
// duration of any run.

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/windowsadmins/rollout/pkg/logging"
)

const lockFileName = ".rollout.lock"

type installLock struct {
	path string
	// createdRoot reports whether acquiring the lock had to create the
	// install root itself, so cleanup can remove it again.
	createdRoot bool
}

// acquireLock takes the install root lock, waiting up to wait for a
// concurrent run to finish.
func acquireLock(root string, wait time.Duration) (*installLock, error) {
	createdRoot := false
	if _, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("creating install root %s: %w", root, err)
		}
		createdRoot = true
	}

	path := filepath.Join(root, lockFileName)
	deadline := time.Now().Add(wait)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d time=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			f.Close()
			return &installLock{path: path, createdRoot: createdRoot}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, &LockError{Path: path}
		}
		logging.Debug("Install root locked, waiting", "path", path)
		time.Sleep(250 * time.Millisecond)
	}
}

func (l *installLock) release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
}
