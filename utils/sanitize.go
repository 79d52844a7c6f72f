package utils

import (
	"path/filepath"
	"strings"
)

// SanitizeHeaderFilename removes characters that can break headers.
func SanitizeHeaderFilename(name string) string {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "download"
	}
	clean = strings.ReplaceAll(clean, "\r", "")
	clean = strings.ReplaceAll(clean, "\n", "")
	clean = strings.ReplaceAll(clean, "\"", "")
	return clean
}

// CleanEntryName normalizes a user-supplied file or folder name.
// It returns "" when nothing usable is left.
func CleanEntryName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.NewReplacer("\r", "", "\n", "", "\x00", "").Replace(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
