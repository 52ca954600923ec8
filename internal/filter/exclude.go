// Package filter implements the exclusion pattern matching applied to
// generated diffs. Patterns are shell-style globs; a pattern beginning with
// the path separator is anchored at the checkout root, any other pattern is
// relative to the directory the command runs from.
package filter

import (
	"path/filepath"
	"strings"
)

// NormalizePatterns resolves exclusion patterns to absolute form.
// Rooted patterns are joined to checkoutRoot with the leading separator
// removed; all others are joined to workingDir.
func NormalizePatterns(patterns []string, workingDir string, checkoutRoot string) []string {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(p, string(filepath.Separator)) {
			normalized = append(normalized, filepath.Join(checkoutRoot, strings.TrimPrefix(p, string(filepath.Separator))))
		} else {
			normalized = append(normalized, filepath.Join(workingDir, p))
		}
	}

	return normalized
}

// Excluded reports whether the absolute file path matches any of the
// normalized patterns. A pattern matches when it globs the full path, or
// when it names the file's directory or any ancestor of it.
func Excluded(path string, patterns []string) bool {
	path = filepath.Clean(path)

	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}

		if path == pattern || strings.HasPrefix(path, pattern+string(filepath.Separator)) {
			return true
		}
	}

	return false
}
