package catalog

import (
	"path/filepath"
	"regexp"
	"strings"
)

var reservedChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// SanitizeName turns a product or file title into a single safe path segment.
func SanitizeName(raw string) string {
	name := strings.TrimSpace(raw)
	name = reservedChars.ReplaceAllString(name, "_")
	name = filepath.Base(name)

	switch name {
	case ".", "..":
		// "." and ".." would escape or collapse the product folder.
		return strings.Repeat("_", len(name))
	}

	return name
}
