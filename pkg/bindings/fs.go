// pkg/bindings/fs.go - real filesystem binding backed by the OS.

package bindings

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OSFilesystem implements Filesystem on the real filesystem. It is portable;
// only the free-space probe is platform-specific.
type OSFilesystem struct{}

func (OSFilesystem) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source %s: %w", src, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (OSFilesystem) MakeDir(path string) (bool, error) {
	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			return false, nil
		}
		return false, fmt.Errorf("%s exists and is not a directory", path)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return false, err
	}
	return true, nil
}

func (OSFilesystem) RemoveFile(path string) error {
	return os.Remove(path)
}

func (OSFilesystem) RemoveDir(path string) error {
	// os.Remove refuses non-empty directories, which is the contract here.
	return os.Remove(path)
}

func (OSFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFilesystem) CanWrite(path string) bool {
	probe := filepath.Join(path, ".rollout-writeprobe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

func (OSFilesystem) SHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NearestExistingDir walks up from path to the first ancestor that exists,
// for probing volumes under not-yet-created install roots.
func NearestExistingDir(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
