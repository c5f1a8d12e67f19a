//go:build windows

// pkg/bindings/registry_windows.go - Registry backed by the Windows registry.

package bindings

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// WindowsRegistry implements Registry on the real Windows registry. Only
// string (REG_SZ) values are read and written; the install model is flat
// string values.
type WindowsRegistry struct{}

func splitKeyPath(key string) (registry.Key, string, error) {
	root, rest, found := strings.Cut(key, `\`)
	if !found {
		return 0, "", fmt.Errorf("registry key %q has no root", key)
	}
	switch strings.ToUpper(root) {
	case "HKLM", "HKEY_LOCAL_MACHINE":
		return registry.LOCAL_MACHINE, rest, nil
	case "HKCU", "HKEY_CURRENT_USER":
		return registry.CURRENT_USER, rest, nil
	case "HKU", "HKEY_USERS":
		return registry.USERS, rest, nil
	case "HKCR", "HKEY_CLASSES_ROOT":
		return registry.CLASSES_ROOT, rest, nil
	default:
		return 0, "", fmt.Errorf("unsupported registry root %q", root)
	}
}

func (WindowsRegistry) SetValue(key, name, value string) error {
	root, path, err := splitKeyPath(key)
	if err != nil {
		return err
	}
	k, _, err := registry.CreateKey(root, path, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("creating key %s: %w", key, err)
	}
	defer k.Close()
	return k.SetStringValue(name, value)
}

func (WindowsRegistry) GetValue(key, name string) (string, bool, error) {
	root, path, err := splitKeyPath(key)
	if err != nil {
		return "", false, err
	}
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err == registry.ErrNotExist {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer k.Close()
	v, _, err := k.GetStringValue(name)
	if err == registry.ErrNotExist {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (WindowsRegistry) DeleteValue(key, name string) error {
	root, path, err := splitKeyPath(key)
	if err != nil {
		return err
	}
	k, err := registry.OpenKey(root, path, registry.SET_VALUE)
	if err == registry.ErrNotExist {
		return nil
	}
	if err != nil {
		return err
	}
	defer k.Close()
	if err := k.DeleteValue(name); err != nil && err != registry.ErrNotExist {
		return err
	}
	return nil
}

func (WindowsRegistry) DeleteKey(key string) error {
	root, path, err := splitKeyPath(key)
	if err != nil {
		return err
	}
	if err := registry.DeleteKey(root, path); err != nil && err != registry.ErrNotExist {
		return err
	}
	return nil
}

func (WindowsRegistry) KeyExists(key string) (bool, error) {
	root, path, err := splitKeyPath(key)
	if err != nil {
		return false, err
	}
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err == registry.ErrNotExist {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	k.Close()
	return true, nil
}

func (WindowsRegistry) KeyValues(key string) (map[string]string, error) {
	root, path, err := splitKeyPath(key)
	if err != nil {
		return nil, err
	}
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE|registry.ENUMERATE_SUB_KEYS)
	if err == registry.ErrNotExist {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer k.Close()

	names, err := k.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, _, err := k.GetStringValue(name)
		if err != nil {
			// Non-string values are not part of the install model; skip.
			continue
		}
		out[name] = v
	}
	return out, nil
}

func (WindowsRegistry) CreateKey(key string) error {
	root, path, err := splitKeyPath(key)
	if err != nil {
		return err
	}
	k, _, err := registry.CreateKey(root, path, registry.SET_VALUE)
	if err != nil {
		return err
	}
	return k.Close()
}
