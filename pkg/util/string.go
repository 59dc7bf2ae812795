package util

import (
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SecureFilename reduces an uploaded filename to a safe ASCII base name.
// Path separators become underscores and leading dots/underscores are removed,
// so the result can never escape the directory it is joined to.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.ReplaceAll(name, "/", " ")

	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	// Limit length but keep the extension
	if len(name) > 100 {
		ext := ""
		if i := strings.LastIndex(name, "."); i > 0 && len(name)-i <= 10 {
			ext = name[i:]
		}
		name = strings.Trim(name[:100-len(ext)], "._") + ext
	}

	return name
}

// ParsePlatforms parses platform strings such as "instagram,whatsapp" or
// `["instagram", "whatsapp"]` into trimmed, lowercase tokens.
func ParsePlatforms(values ...string) []string {
	var platforms []string

	for _, value := range values {
		// Remove brackets if present
		value = strings.Trim(strings.TrimSpace(value), "[]")

		for _, platform := range strings.Split(value, ",") {
			platform = strings.TrimSpace(platform)
			platform = strings.Trim(platform, "\"'") // Remove quotes
			if platform != "" {
				platforms = append(platforms, strings.ToLower(platform))
			}
		}
	}

	return platforms
}
