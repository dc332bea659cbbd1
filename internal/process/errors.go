// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSpawn is the sentinel matched by SpawnError.
	ErrSpawn = errors.New("spawn failed")
	// ErrMarkerTimeout is the sentinel matched by MarkerTimeoutError.
	ErrMarkerTimeout = errors.New("marker wait timed out")
	// ErrProcessExited is the sentinel matched by ExitedError.
	ErrProcessExited = errors.New("process exited before marker")
)

type (
	// SpawnError reports that a tool could not be found or started.
	SpawnError struct {
		Tool string
		Err  error
	}

	// MarkerTimeoutError reports that no output line matched before the
	// deadline. The process is left running.
	MarkerTimeoutError struct {
		Label   string
		Matcher string
		Timeout time.Duration
	}

	// ExitedError reports that the output ended, and the process exited,
	// without a matching line.
	ExitedError struct {
		Label   string
		Matcher string
		Status  ExitStatus
	}
)

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Tool, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is matches ErrSpawn in addition to the wrapped cause.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

func (e *MarkerTimeoutError) Error() string {
	return fmt.Sprintf("%s: no line matching %s within %s", e.Label, e.Matcher, e.Timeout)
}

func (e *MarkerTimeoutError) Unwrap() error { return ErrMarkerTimeout }

func (e *ExitedError) Error() string {
	return fmt.Sprintf("%s exited (%s) before printing a line matching %s", e.Label, e.Status, e.Matcher)
}

func (e *ExitedError) Unwrap() error { return ErrProcessExited }
