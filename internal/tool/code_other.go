//go:build !unix

package tool

import "os/exec"

// killProcessGroup leaves exec's default cancellation in place: only the
// interpreter is killed.
func killProcessGroup(cmd *exec.Cmd) {}
