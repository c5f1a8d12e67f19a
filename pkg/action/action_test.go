package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `
product: BLUR
version: 1.4.0
process_name: blur.exe
supported_architectures: [x64, arm64]
require_elevation: true
actions:
  - kind: make_dir
    target: C:\Program Files\BLUR
  - kind: copy_file
    source: .\payload\blur.exe
    target: C:\Program Files\BLUR\blur.exe
    overwrite: true
  - kind: make_shortcut
    target: C:\Users\Public\Desktop\BLUR.lnk
    shortcut_target: C:\Program Files\BLUR\blur.exe
    icon: .\payload\blur.png
  - kind: set_registry_value
    target: HKLM\SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall\BLUR
    value_name: DisplayName
    value: BLUR
`

func TestParseValidManifest(t *testing.T) {
	m, err := Parse([]byte(validManifest))
	require.NoError(t, err)

	assert.Equal(t, "BLUR", m.Product)
	assert.Equal(t, "1.4.0", m.Version)
	assert.True(t, m.RequireElevation)
	require.Len(t, m.Actions, 4)
	assert.Equal(t, MakeDir, m.Actions[0].Kind)
	assert.True(t, m.Actions[1].Overwrite)
	assert.Equal(t, "DisplayName", m.Actions[3].ValueName)
}

func TestParseRejectsBadManifests(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing product", "version: 1.0\nactions:\n  - kind: make_dir\n    target: X\n"},
		{"missing version", "product: X\nactions:\n  - kind: make_dir\n    target: X\n"},
		{"no actions", "product: X\nversion: 1.0\nactions: []\n"},
		{"unknown kind", "product: X\nversion: 1.0\nactions:\n  - kind: format_disk\n    target: X\n"},
		{"action without target", "product: X\nversion: 1.0\nactions:\n  - kind: make_dir\n"},
		{"copy without source", "product: X\nversion: 1.0\nactions:\n  - kind: copy_file\n    target: X\n"},
		{"shortcut without target path", "product: X\nversion: 1.0\nactions:\n  - kind: make_shortcut\n    target: X\n"},
		{"registry value without name", "product: X\nversion: 1.0\nactions:\n  - kind: set_registry_value\n    target: HKCU\\Software\\X\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validManifest), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BLUR", m.Product)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPayloadBytes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.exe")
	require.NoError(t, os.WriteFile(src, make([]byte, 1234), 0644))

	m := &Manifest{
		Product: "X", Version: "1.0",
		Actions: []Action{
			{Kind: CopyFile, Source: src, Target: filepath.Join(dir, "out", "app.exe")},
			{Kind: MakeDir, Target: filepath.Join(dir, "out")},
			{Kind: CopyFile, Source: filepath.Join(dir, "missing.bin"), Target: "x"},
		},
	}
	assert.Equal(t, uint64(1234), m.PayloadBytes())
}

func TestUninstallEntryActions(t *testing.T) {
	actions := UninstallEntryActions("BLUR", "1.4.0", `C:\Program Files\BLUR`, `C:\Program Files\BLUR\blur.exe`)
	require.NotEmpty(t, actions)

	names := map[string]string{}
	for _, a := range actions {
		assert.Equal(t, SetRegistryValue, a.Kind)
		assert.Contains(t, a.Target, `Uninstall\BLUR`)
		names[a.ValueName] = a.Value
	}
	assert.Equal(t, "BLUR", names["DisplayName"])
	assert.Equal(t, "1.4.0", names["DisplayVersion"])
}

func TestExecutablePath(t *testing.T) {
	m := &Manifest{
		Product: "X", Version: "1.0", ProcessName: "blur",
		Actions: []Action{
			{Kind: CopyFile, Source: "s1", Target: filepath.Join("root", "helper.exe")},
			{Kind: CopyFile, Source: "s2", Target: filepath.Join("root", "blur.exe")},
		},
	}
	assert.Equal(t, filepath.Join("root", "blur.exe"), m.ExecutablePath(), "ProcessName match wins over earlier copies")

	m.ProcessName = ""
	assert.Equal(t, filepath.Join("root", "helper.exe"), m.ExecutablePath())

	m.Actions = []Action{{Kind: CopyFile, Source: "s", Target: filepath.Join("root", "data.bin")}}
	assert.Equal(t, "", m.ExecutablePath())
}

func TestParseRegisterUninstallFlag(t *testing.T) {
	m, err := Parse([]byte(`
product: BLUR
version: 1.4.0
register_uninstall: true
actions:
  - kind: make_dir
    target: C:\Program Files\BLUR
`))
	require.NoError(t, err)
	assert.True(t, m.RegisterUninstall)
}
