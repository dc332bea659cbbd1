// SPDX-License-Identifier: MPL-2.0

//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// startPTY falls back to pipes on Windows.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	return startPiped(cmd)
}

// interruptGroup asks the process tree to close.
func interruptGroup(pid int) error {
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func killGroup(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}

// killStragglers is a no-op: once the root has exited its pid may be reused
// and taskkill /T would target an unrelated tree.
func killStragglers(int) {}
