//go:build !unix

package runner

import "os/exec"

// killGroup keeps the default behaviour: cancellation kills the direct child.
func killGroup(*exec.Cmd) {}
