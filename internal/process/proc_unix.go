// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// startPTY starts cmd as a session leader attached to a new pseudo-terminal.
// The session id doubles as the process group id.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	return pty.Start(cmd)
}

func interruptGroup(pid int) error {
	return ignoreGone(unix.Kill(-pid, unix.SIGTERM))
}

func killGroup(pid int) error {
	return ignoreGone(unix.Kill(-pid, unix.SIGKILL))
}

func killStragglers(pid int) {
	_ = killGroup(pid)
}

func ignoreGone(err error) error {
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
