package util

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces a leading "~" with the current user's home directory.
//
// Only the bare "~" and "~/..." forms are expanded; "~user" is returned as-is
// because resolving other users' home directories is not portable. If the home
// directory cannot be determined, the path is returned unchanged and the
// caller's subsequent file operation reports the problem.
//
// Examples (home = /home/dev):
//
//	ExpandTilde("~")                   → "/home/dev"
//	ExpandTilde("~/.cloudflared")      → "/home/dev/.cloudflared"
//	ExpandTilde("/etc/cloudflared")    → "/etc/cloudflared"
//	ExpandTilde("")                    → ""
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
