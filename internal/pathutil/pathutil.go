// Package pathutil holds small path helpers shared by the connection and
// transfer layers.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading ~/ to the user's home directory.
// Paths like ~otheruser/... are returned unchanged since we cannot
// reliably resolve other users' home directories.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") && path != "~" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// FirstExisting returns the first path in paths that exists on disk, after
// home expansion, or "" when none do.
func FirstExisting(paths []string) string {
	for _, p := range paths {
		expanded := ExpandHome(p)
		if _, err := os.Stat(expanded); err == nil {
			return expanded
		}
	}
	return ""
}
