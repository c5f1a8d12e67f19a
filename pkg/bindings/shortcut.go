// pkg/bindings/shortcut.go - portable shortcut binding.

package bindings

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileShortcuts implements Shortcut by writing a small descriptor file at
// the shortcut path. Used off-Windows and in tests, where .lnk COM plumbing
// is unavailable.
type FileShortcuts struct{}

func (FileShortcuts) Create(path, target, args, icon string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	body := fmt.Sprintf("target=%s\nargs=%s\nicon=%s\n", target, args, icon)
	return os.WriteFile(path, []byte(body), 0644)
}

func (FileShortcuts) Delete(path string) error {
	return os.Remove(path)
}

func (FileShortcuts) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
