// pkg/bindings/bindings.go - narrow interfaces over the platform facilities
// the engine mutates. The engine and preflight checker only ever talk to
// these, which keeps the transactional logic testable off-Windows.

package bindings

// Filesystem covers the file operations the engine performs.
type Filesystem interface {
	// Copy copies src to dst, creating parent directories as needed.
	Copy(src, dst string) error
	// MakeDir creates path (and parents). created reports whether the leaf
	// directory was newly created, which decides whether uninstall removes it.
	MakeDir(path string) (created bool, err error)
	RemoveFile(path string) error
	// RemoveDir removes path only if it is empty.
	RemoveDir(path string) error
	Exists(path string) bool
	// FreeSpace reports available bytes on the volume holding path. The path
	// need not exist; the nearest existing ancestor is probed.
	FreeSpace(path string) (uint64, error)
	// CanWrite probes whether the current token can create files under path.
	CanWrite(path string) bool
	// SHA256 returns the hex digest of the file contents.
	SHA256(path string) (string, error)
}

// Shortcut creates and deletes launcher shortcuts.
type Shortcut interface {
	Create(path, target, args, icon string) error
	Delete(path string) error
	Exists(path string) bool
}

// Registry reads and writes string values under keys addressed as
// `HKLM\SOFTWARE\...` style paths. SetValue creates the key if needed.
type Registry interface {
	SetValue(key, name, value string) error
	// GetValue returns the value and whether it exists.
	GetValue(key, name string) (string, bool, error)
	DeleteValue(key, name string) error
	DeleteKey(key string) error
	KeyExists(key string) (bool, error)
	// KeyValues returns all string values of a key, for restore on rollback.
	KeyValues(key string) (map[string]string, error)
	// CreateKey creates an empty key, used when rollback restores a deleted one.
	CreateKey(key string) error
}

// Process answers questions about and controls running product instances.
type Process interface {
	IsRunning(name string) bool
	Terminate(name string) error
}

// Host reports immutable facts about the machine and current token.
type Host interface {
	IsElevated() bool
	// Arch returns the normalized architecture: x64, x86 or arm64.
	Arch() string
}

// UI asks the interactive user a yes/no question. The engine only consults
// it before force-terminating a running product.
type UI interface {
	Confirm(title, text string) bool
}

// System bundles the collaborator set handed to the engines.
type System struct {
	FS       Filesystem
	Shortcut Shortcut
	Registry Registry
	Process  Process
	Host     Host
	UI       UI
}
