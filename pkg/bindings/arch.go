package bindings

import "strings"

// NormalizeArch maps architecture synonyms to the x64/x86/arm64 vocabulary
// used in manifests.
func NormalizeArch(arch string) string {
	arch = strings.ToLower(arch)
	switch arch {
	case "amd64", "x86_64":
		return "x64"
	case "386", "i386":
		return "x86"
	default:
		return arch
	}
}
