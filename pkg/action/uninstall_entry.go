package action

import "path/filepath"

const uninstallKeyBase = `HKLM\SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`

// UninstallEntryActions returns the registry actions that register a product
// in the Apps & Features uninstall list. Manifest authors can list these by
// hand; this helper produces the conventional set.
func UninstallEntryActions(product, version, installRoot, exePath string) []Action {
	key := uninstallKeyBase + `\` + product
	values := []struct{ name, value string }{
		{"DisplayName", product},
		{"DisplayVersion", version},
		{"InstallLocation", installRoot},
		{"DisplayIcon", exePath + ",0"},
		{"UninstallString", filepath.Join(installRoot, "rollout.exe") + " uninstall --record " + filepath.Join(installRoot, RecordDirName, RecordFileName)},
	}

	actions := make([]Action, 0, len(values))
	for _, v := range values {
		actions = append(actions, Action{
			Kind:      SetRegistryValue,
			Target:    key,
			ValueName: v.name,
			Value:     v.value,
		})
	}
	return actions
}

// RecordDirName is the directory under the install root that holds the
// transaction log and sealed install record.
const RecordDirName = ".rollout"

// RecordFileName is the sealed install record file name.
const RecordFileName = "install-record.yaml"
