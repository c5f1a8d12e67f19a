//go:build !windows

package bindings

// Default returns the development collaborator set used off-Windows. The
// registry is in-memory and shortcuts are descriptor files; file operations
// are real.
func Default() *System {
	return &System{
		FS:       OSFilesystem{},
		Shortcut: FileShortcuts{},
		Registry: NewMemRegistry(),
		Process:  SystemProcess{},
		Host:     PosixHost{},
		UI:       ConsoleUI{},
	}
}
