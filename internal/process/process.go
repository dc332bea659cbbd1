// SPDX-License-Identifier: MPL-2.0

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/buildbench/internal/logging"
)

const (
	// DefaultGrace is the wait between the polite and the forced stop.
	DefaultGrace = 3 * time.Second

	consoleQueue = 256
	maxLineBytes = 1024 * 1024
)

type (
	// Spec describes a process to spawn.
	Spec struct {
		// Name is the program, resolved through PATH.
		Name string
		Args []string
		// Dir is the working directory.
		Dir string
		// Env holds overrides applied on top of the parent environment.
		Env map[string]string
		// Label prefixes console lines and error messages. Defaults to Name.
		Label string
		// PTY runs the process attached to a pseudo-terminal, for tools
		// that only behave interactively when they see one.
		PTY bool
		// Console, when set, receives every output line as "[label] line".
		Console io.Writer
	}

	// ExitStatus describes how a process ended.
	ExitStatus struct {
		// Code is the exit code, or -1 when the process was killed by a
		// signal.
		Code int
	}

	// Runner spawns processes.
	Runner struct {
		logger *log.Logger
	}

	// Handle is a running (or finished) process. It is owned by a single
	// phase; WaitForLine must not be called concurrently.
	Handle struct {
		label  string
		pid    int
		cmd    *exec.Cmd
		output *os.File
		logger *log.Logger

		buf    *lineBuffer
		cursor int

		console     chan string
		consoleDone chan struct{}
		dropped     atomic.Int64
		readerDone  chan struct{}
		exited      chan struct{}
		status      ExitStatus

		termOnce sync.Once
		termErr  error
	}
)

// Success reports a zero exit code.
func (s ExitStatus) Success() bool { return s.Code == 0 }

func (s ExitStatus) String() string {
	if s.Code < 0 {
		return "killed by signal"
	}
	return "exit code " + strconv.Itoa(s.Code)
}

// NewRunner creates a Runner. A nil logger discards.
func NewRunner(logger *log.Logger) *Runner {
	return &Runner{logger: logging.OrDiscard(logger)}
}

// Spawn starts spec. The tool is resolved on PATH first; a missing tool is
// reported as a SpawnError naming it. Cancelling ctx terminates the
// process group.
func (r *Runner) Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	label := spec.Label
	if label == "" {
		label = spec.Name
	}

	path, err := exec.LookPath(spec.Name)
	if err != nil {
		return nil, &SpawnError{Tool: spec.Name, Err: err}
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)

	var output *os.File
	if spec.PTY {
		output, err = startPTY(cmd)
		if err != nil {
			return nil, &SpawnError{Tool: spec.Name, Err: err}
		}
	} else {
		output, err = startPiped(cmd)
		if err != nil {
			return nil, &SpawnError{Tool: spec.Name, Err: err}
		}
	}

	h := &Handle{
		label:      label,
		pid:        cmd.Process.Pid,
		cmd:        cmd,
		output:     output,
		logger:     r.logger,
		buf:        newLineBuffer(),
		readerDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}
	if spec.Console != nil {
		h.console = make(chan string, consoleQueue)
		h.consoleDone = make(chan struct{})
		go h.writeConsole(spec.Console)
	}
	go h.read()
	go h.wait()
	go func() {
		select {
		case <-ctx.Done():
			_ = h.Terminate(DefaultGrace)
		case <-h.exited:
		}
	}()

	r.logger.Debug("spawned", "label", label, "pid", h.pid, "path", path, "args", spec.Args, "dir", spec.Dir)
	return h, nil
}

// startPiped starts cmd in its own process group with stdout and stderr
// sharing one pipe, and returns the read end.
func startPiped(cmd *exec.Cmd) (*os.File, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, err
	}
	// The child holds its own copy; ours must go so EOF arrives when the
	// process group is gone.
	_ = pw.Close()
	return pr, nil
}

// mergeEnv appends overrides to base in key order. exec.Cmd keeps the last
// value of a duplicated key, so overrides win.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := slices.Clone(base)
	for _, k := range slices.Sorted(maps.Keys(overrides)) {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// Pid returns the process id, which is also the process group id.
func (h *Handle) Pid() int { return h.pid }

// Label returns the console label.
func (h *Handle) Label() string { return h.label }

// Exited is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} { return h.exited }

// Lines returns a copy of the buffered output lines.
func (h *Handle) Lines() []string { return h.buf.snapshot() }

// DroppedConsoleLines returns how many lines the console skipped because
// the operator's terminal could not keep up.
func (h *Handle) DroppedConsoleLines() int64 { return h.dropped.Load() }

func (h *Handle) read() {
	defer close(h.readerDone)
	defer h.buf.close()
	if h.console != nil {
		defer close(h.console)
	}

	scanner := bufio.NewScanner(h.output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		h.buf.append(line)
		if h.console != nil {
			select {
			case h.console <- line:
			default:
				h.dropped.Add(1)
			}
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		h.logger.Debug("output reader stopped", "label", h.label, "err", err)
		// Keep draining so the writer never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, h.output)
	}
}

func (h *Handle) writeConsole(w io.Writer) {
	defer close(h.consoleDone)
	for line := range h.console {
		_, _ = fmt.Fprintf(w, "[%s] %s\n", h.label, line)
	}
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	h.status = ExitStatus{Code: code}
	close(h.exited)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.logger.Debug("wait failed", "label", h.label, "err", err)
	}
	h.logger.Debug("exited", "label", h.label, "pid", h.pid, "status", h.status)
}

// WaitForExit blocks until the process exits or ctx is done. A non-zero
// exit is reported in the status, not as an error.
func (h *Handle) WaitForExit(ctx context.Context) (ExitStatus, error) {
	select {
	case <-h.exited:
		return h.status, nil
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}
}

// WaitForLine consumes output lines, starting after the last line
// consumed by a previous call, until one satisfies m. A timeout of zero or
// less waits for ctx alone. The process is never stopped by this method.
func (h *Handle) WaitForLine(ctx context.Context, m Matcher, timeout time.Duration) (string, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	timedOut := func() error {
		return &MarkerTimeoutError{Label: h.label, Matcher: m.String(), Timeout: timeout}
	}

	for {
		line, ok, closed, wait := h.buf.next(&h.cursor)
		if ok {
			if m.Match(line) {
				return line, nil
			}
			continue
		}
		if closed {
			// Output is exhausted; report the exit once the process is reaped.
			select {
			case <-h.exited:
				return "", &ExitedError{Label: h.label, Matcher: m.String(), Status: h.status}
			case <-deadline:
				return "", timedOut()
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		select {
		case <-wait:
		case <-deadline:
			return "", timedOut()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Terminate stops the whole process group: a polite signal first, then a
// forced kill once grace elapses. It waits for the output reader to finish
// and is safe to call more than once; later calls return the first result.
func (h *Handle) Terminate(grace time.Duration) error {
	h.termOnce.Do(func() { h.termErr = h.terminate(grace) })
	return h.termErr
}

func (h *Handle) terminate(grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultGrace
	}

	var err error
	select {
	case <-h.exited:
	default:
		h.logger.Debug("terminating", "label", h.label, "pid", h.pid)
		if sigErr := interruptGroup(h.pid); sigErr != nil {
			h.logger.Debug("polite stop failed", "label", h.label, "err", sigErr)
		}
		timer := time.NewTimer(grace)
		select {
		case <-h.exited:
			timer.Stop()
		case <-timer.C:
			h.logger.Debug("grace elapsed, killing", "label", h.label, "pid", h.pid)
			_ = killGroup(h.pid)
			select {
			case <-h.exited:
			case <-time.After(grace):
				err = fmt.Errorf("%s (pid %d) did not exit after kill", h.label, h.pid)
			}
		}
	}
	// Descendants may outlive the group leader and keep the pipe open.
	killStragglers(h.pid)

	select {
	case <-h.readerDone:
	case <-time.After(grace):
		// A descendant escaped the group; stop reading.
		_ = h.output.Close()
		<-h.readerDone
	}
	_ = h.output.Close()
	if h.consoleDone != nil {
		<-h.consoleDone
	}
	return err
}
