//go:build windows

package llmclient

import (
	"os/exec"
	"strconv"
)

func setProcessGroup(*exec.Cmd) {}

// Windows has no graceful group signal, so both rungs of the ladder kill the
// process tree outright.
func terminateTree(cmd *exec.Cmd) error {
	return killTree(cmd)
}

func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
}
