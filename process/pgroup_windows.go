//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

// Windows has no process groups that can be signalled, so only the process itself is stopped.
func setProcessGroup(cmd *exec.Cmd) {}

func terminateGroup(pid int) error {
	return killGroup(pid)
}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return os.ErrProcessDone
	}
	return p.Kill()
}

func isNoProcess(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}

// Alive returns true if a process with this ID exists. Windows keeps no zombies to rule out.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
