// pkg/bindings/ui.go - user confirmation bindings.

package bindings

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ConsoleUI asks on the terminal. Used for console runs and off-Windows.
type ConsoleUI struct{}

func (ConsoleUI) Confirm(title, text string) bool {
	fmt.Printf("%s\n%s [y/N]: ", title, text)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// AutoConfirm answers yes to everything; wired in when the caller passes
// a --yes style flag or runs unattended.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(string, string) bool { return true }
