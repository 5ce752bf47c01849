// Package fsutil holds small filesystem helpers shared by config loading and
// the command entrypoint.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading "~" or "~/" to the user's home directory.
// Paths of the form "~user" are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// IsFile reports whether path names an existing regular file.
func IsFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// FirstFile returns the first candidate, after home expansion, that is a
// regular file. Candidates that fail to expand are skipped.
func FirstFile(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		p, err := ExpandHome(c)
		if err != nil {
			continue
		}
		if IsFile(p) {
			return p, true
		}
	}
	return "", false
}
