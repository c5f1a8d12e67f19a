//go:build windows

package bindings

import "golang.org/x/sys/windows"

func (OSFilesystem) FreeSpace(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(NearestExistingDir(path))
	if err != nil {
		return 0, err
	}
	var freeToCaller, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &free); err != nil {
		return 0, err
	}
	return freeToCaller, nil
}
