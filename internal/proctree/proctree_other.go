//go:build !linux

package proctree

import "fmt"

// Snapshot returns an empty tree on platforms without a /proc filesystem.
// corral's core targets POSIX first-class, matching pty.Start's own
// platform scope; a fuller Windows implementation would walk
// CreateToolhelp32Snapshot instead.
func Snapshot(rootPID int) ([]Process, error) {
	return nil, nil
}

// Kill is unimplemented outside Linux; process-tree kill is a secondary
// command surface entry and not required for the core PTY lifecycle.
func Kill(pid int) error {
	return fmt.Errorf("proctree: Kill is not supported on this platform")
}
