//go:build !windows

package process

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup makes the command the leader of a new process group, whose ID is the same
// as its process ID.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func terminateGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGTERM)
}

func killGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}

func isNoProcess(err error) bool {
	return errors.Is(err, unix.ESRCH) || errors.Is(err, os.ErrProcessDone)
}

// Alive returns true if a process with this ID exists and has not exited. A zombie process,
// which has exited but not been reaped by its parent, is not alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	return !isZombie(pid)
}

// isZombie reads the process state from /proc where there is one. Elsewhere it assumes not.
func isZombie(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// the command name is in parentheses and may itself contain spaces or parentheses
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return false
	}
	return data[i+2] == 'Z'
}
