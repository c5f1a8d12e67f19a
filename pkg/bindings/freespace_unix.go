//go:build !windows

package bindings

import "golang.org/x/sys/unix"

func (OSFilesystem) FreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(NearestExistingDir(path), &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
