// SPDX-License-Identifier: MPL-2.0

package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invowk/buildbench/internal/payload"
	"github.com/invowk/buildbench/internal/process"
	"github.com/invowk/buildbench/internal/workspace"
)

// Error kinds recorded in results.
const (
	KindWorkspaceCreation ErrorKind = "workspace_creation"
	KindPayloadNotFound   ErrorKind = "payload_not_found"
	KindSpawn             ErrorKind = "spawn"
	KindBuildFailure      ErrorKind = "build_failure"
	KindMarkerTimeout     ErrorKind = "marker_timeout"
	KindProcessExited     ErrorKind = "process_exited"
	KindTimeout           ErrorKind = "timeout"
	KindCanceled          ErrorKind = "canceled"
	KindPanic             ErrorKind = "panic"
	KindInternal          ErrorKind = "internal"
)

var (
	// ErrBuildFailure is the sentinel matched by BuildFailure.
	ErrBuildFailure = errors.New("build failed")
	// ErrPhaseTimeout is the sentinel matched by TimeoutError.
	ErrPhaseTimeout = errors.New("phase timed out")
	// ErrPanic is the sentinel matched by PanicError.
	ErrPanic = errors.New("phase panicked")
)

type (
	// ErrorKind classifies why a phase failed.
	ErrorKind string

	// BuildFailure reports a build tool exiting unsuccessfully.
	BuildFailure struct {
		Phase  Name
		Status process.ExitStatus
	}

	// TimeoutError reports a build exceeding its deadline.
	TimeoutError struct {
		Phase   Name
		Timeout time.Duration
	}

	// PanicError carries a panic recovered inside a phase.
	PanicError struct {
		Phase Name
		Value any
	}
)

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("%s: build failed with %s", e.Phase, e.Status)
}

func (e *BuildFailure) Unwrap() error { return ErrBuildFailure }

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: exceeded %s", e.Phase, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrPhaseTimeout }

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Phase, e.Value)
}

func (e *PanicError) Unwrap() error { return ErrPanic }

// Classify maps an error to the kind recorded in results.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, workspace.ErrWorkspaceCreation):
		return KindWorkspaceCreation
	case errors.Is(err, payload.ErrPayloadNotFound):
		return KindPayloadNotFound
	case errors.Is(err, process.ErrSpawn):
		return KindSpawn
	case errors.Is(err, ErrBuildFailure):
		return KindBuildFailure
	case errors.Is(err, process.ErrMarkerTimeout):
		return KindMarkerTimeout
	case errors.Is(err, process.ErrProcessExited):
		return KindProcessExited
	case errors.Is(err, ErrPhaseTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrPanic):
		return KindPanic
	default:
		return KindInternal
	}
}
