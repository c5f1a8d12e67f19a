//go:build windows

package bindings

import (
	"os"

	"golang.org/x/sys/windows"
)

// Default returns the production collaborator set. Confirmation prompts use
// the console when one is attached; runs launched from Explorer or a
// service wrapper have no console, so those get a native message box.
func Default() *System {
	var ui UI = MessageBoxUI{}
	var mode uint32
	if err := windows.GetConsoleMode(windows.Handle(os.Stdin.Fd()), &mode); err == nil {
		ui = ConsoleUI{}
	}
	return &System{
		FS:       OSFilesystem{},
		Shortcut: LnkShortcuts{},
		Registry: WindowsRegistry{},
		Process:  SystemProcess{},
		Host:     WindowsHost{},
		UI:       ui,
	}
}
