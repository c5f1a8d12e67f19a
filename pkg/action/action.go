// pkg/action/action.go - reversible install actions and their manifest.

package action

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Kind identifies the type of a single install-time side effect.
type Kind string

const (
	CopyFile          Kind = "copy_file"
	MakeDir           Kind = "make_dir"
	MakeShortcut      Kind = "make_shortcut"
	SetRegistryValue  Kind = "set_registry_value"
	DeleteRegistryKey Kind = "delete_registry_key"
)

// Action is one reversible operation. Immutable once constructed; the
// engines only ever read it.
type Action struct {
	Kind   Kind   `yaml:"kind" json:"kind" validate:"required,oneof=copy_file make_dir make_shortcut set_registry_value delete_registry_key"`
	Target string `yaml:"target" json:"target" validate:"required"`

	// copy_file payload
	Source    string `yaml:"source,omitempty" json:"source,omitempty"`
	Hash      string `yaml:"hash,omitempty" json:"hash,omitempty"` // optional SHA-256 of the source payload
	Overwrite bool   `yaml:"overwrite,omitempty" json:"overwrite,omitempty"`

	// make_shortcut payload
	ShortcutTarget string `yaml:"shortcut_target,omitempty" json:"shortcut_target,omitempty"`
	Arguments      string `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Icon           string `yaml:"icon,omitempty" json:"icon,omitempty"`

	// set_registry_value payload; Target is the key path for registry kinds
	ValueName string `yaml:"value_name,omitempty" json:"value_name,omitempty"`
	Value     string `yaml:"value,omitempty" json:"value,omitempty"`
}

// String returns a short description suitable for logs and error messages.
func (a Action) String() string {
	switch a.Kind {
	case SetRegistryValue:
		return fmt.Sprintf("%s %s\\%s", a.Kind, a.Target, a.ValueName)
	case CopyFile:
		return fmt.Sprintf("%s %s -> %s", a.Kind, a.Source, a.Target)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Target)
	}
}

// validatePayload enforces the per-kind required fields the struct tags
// cannot express.
func (a Action) validatePayload(idx int) error {
	switch a.Kind {
	case CopyFile:
		if a.Source == "" {
			return fmt.Errorf("action %d (%s): copy_file requires source", idx, a.Target)
		}
	case MakeShortcut:
		if a.ShortcutTarget == "" {
			return fmt.Errorf("action %d (%s): make_shortcut requires shortcut_target", idx, a.Target)
		}
	case SetRegistryValue:
		if a.ValueName == "" {
			return fmt.Errorf("action %d (%s): set_registry_value requires value_name", idx, a.Target)
		}
	}
	return nil
}

// Manifest is the ordered set of Actions defining a target installed state,
// plus the product metadata the preflight checks and install record need.
type Manifest struct {
	Product string `yaml:"product" validate:"required"`
	Version string `yaml:"version" validate:"required"`

	// ProcessName is the product executable checked for running instances
	// before install and killed before uninstall. Optional.
	ProcessName string `yaml:"process_name,omitempty"`

	// SupportedArch lists acceptable host architectures (x64, arm64, x86).
	// Empty means any.
	SupportedArch []string `yaml:"supported_architectures,omitempty"`

	// RequireElevation demands an elevated token before any mutation.
	RequireElevation bool `yaml:"require_elevation,omitempty"`

	// RegisterUninstall appends the Apps & Features registry entries (see
	// UninstallEntryActions) to the action list at install time, so they
	// are logged, reversed and uninstalled like any hand-written action.
	RegisterUninstall bool `yaml:"register_uninstall,omitempty"`

	Actions []Action `yaml:"actions" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Load reads and validates a manifest YAML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates manifest YAML bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	for i, a := range m.Actions {
		if err := a.validatePayload(i); err != nil {
			return nil, fmt.Errorf("invalid manifest: %w", err)
		}
	}
	return &m, nil
}

// ExecutablePath returns the installed path of the product executable: the
// first copy_file target matching ProcessName, else the first .exe copied,
// else empty.
func (m *Manifest) ExecutablePath() string {
	var firstExe string
	for _, a := range m.Actions {
		if a.Kind != CopyFile {
			continue
		}
		base := filepath.Base(a.Target)
		if m.ProcessName != "" && (base == m.ProcessName || base == m.ProcessName+".exe") {
			return a.Target
		}
		if firstExe == "" && filepath.Ext(base) == ".exe" {
			firstExe = a.Target
		}
	}
	return firstExe
}

// PayloadBytes sums the sizes of all copy_file sources, for the preflight
// free-space check. Sources that cannot be stat'd contribute zero; the copy
// itself will surface the real error.
func (m *Manifest) PayloadBytes() uint64 {
	var total uint64
	for _, a := range m.Actions {
		if a.Kind != CopyFile {
			continue
		}
		if fi, err := os.Stat(a.Source); err == nil {
			total += uint64(fi.Size())
		}
	}
	return total
}
