//go:build windows

package bindings

import "github.com/gonutz/w32"

// MessageBoxUI asks with a native message box, for runs launched from the
// shell rather than a console.
type MessageBoxUI struct{}

func (MessageBoxUI) Confirm(title, text string) bool {
	r := w32.MessageBox(0, text, title, w32.MB_YESNO|w32.MB_ICONWARNING|w32.MB_TOPMOST)
	return r == w32.IDYES
}
