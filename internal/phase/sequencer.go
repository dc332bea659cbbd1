// SPDX-License-Identifier: MPL-2.0

package phase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/buildbench/internal/logging"
	"github.com/invowk/buildbench/internal/matrix"
	"github.com/invowk/buildbench/internal/payload"
	"github.com/invowk/buildbench/internal/process"
)

// Defaults applied by NewSequencer to zero-valued Options fields.
const (
	DefaultBuildTimeout   = 30 * time.Minute
	DefaultStartupTimeout = 3 * time.Minute
	DefaultPatchTimeout   = 30 * time.Second
)

type (
	// Process is the part of a spawned process the sequencer drives.
	Process interface {
		WaitForExit(ctx context.Context) (process.ExitStatus, error)
		WaitForLine(ctx context.Context, m process.Matcher, timeout time.Duration) (string, error)
		Terminate(grace time.Duration) error
	}

	// Spawner starts processes.
	Spawner interface {
		Spawn(ctx context.Context, spec process.Spec) (Process, error)
	}

	// Mutator edits the payload constant of a workspace.
	Mutator interface {
		Mutate(root string) (payload.Value, error)
	}

	// Command is a program plus arguments.
	Command struct {
		Name string
		Args []string
	}

	// Options configures a Sequencer.
	Options struct {
		Build Command
		Serve Command
		// ServePTY attaches the serve process to a pseudo-terminal.
		ServePTY bool
		// Env is applied to every spawned tool, under the scenario's own
		// overrides.
		Env            map[string]string
		BuildTimeout   time.Duration
		StartupTimeout time.Duration
		PatchTimeout   time.Duration
		Grace          time.Duration
		// Console receives tool output; nil keeps it quiet.
		Console io.Writer
		Logger  *log.Logger
	}

	// Sequencer runs the phases of one scenario at a time.
	Sequencer struct {
		spawner Spawner
		mutator Mutator
		opts    Options
		logger  *log.Logger
		now     func() time.Time
		// lookPath resolves the tools a build invokes indirectly.
		lookPath func(string) (string, error)
	}

	runnerSpawner struct {
		runner *process.Runner
	}
)

// NewSpawner adapts a process.Runner to Spawner.
func NewSpawner(r *process.Runner) Spawner {
	return runnerSpawner{runner: r}
}

func (s runnerSpawner) Spawn(ctx context.Context, spec process.Spec) (Process, error) {
	h, err := s.runner.Spawn(ctx, spec)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// NewSequencer creates a Sequencer.
func NewSequencer(spawner Spawner, mutator Mutator, opts Options) *Sequencer {
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.PatchTimeout <= 0 {
		opts.PatchTimeout = DefaultPatchTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = process.DefaultGrace
	}
	return &Sequencer{
		spawner:  spawner,
		mutator:  mutator,
		opts:     opts,
		logger:   logging.OrDiscard(opts.Logger),
		now:      time.Now,
		lookPath: exec.LookPath,
	}
}

// Run executes every applicable phase of sc in the workspace at root. It
// always returns a result; failures are recorded, not returned.
func (s *Sequencer) Run(ctx context.Context, sc matrix.Scenario, root string) ScenarioResult {
	res := ScenarioResult{
		Slug:      sc.Slug(),
		Scenario:  sc,
		Outcome:   OutcomeSuccess,
		StartedAt: s.now().UTC(),
	}

	var failed bool
	for _, name := range Applicable(sc) {
		if failed {
			res.Phases = append(res.Phases, skipped(name))
			continue
		}

		s.logger.Info("phase started", "scenario", res.Slug, "phase", name)
		result, err := s.runPhase(ctx, name, sc, root)
		result.Name = name
		if err != nil {
			failed = true
			result.Outcome = OutcomeFailure
			result.Reason = err.Error()
			result.ErrorKind = Classify(err)
			res.Outcome = OutcomeFailure
			res.Reason = result.Reason
			res.ErrorKind = result.ErrorKind
			s.logger.Warn("phase failed", "scenario", res.Slug, "phase", name, "kind", result.ErrorKind, "err", err)
		} else {
			result.Outcome = OutcomeSuccess
			s.logger.Info("phase finished", "scenario", res.Slug, "phase", name, "duration", result.Duration)
		}
		res.Phases = append(res.Phases, result)
	}

	res.FinishedAt = s.now().UTC()
	return res
}

func (s *Sequencer) runPhase(ctx context.Context, name Name, sc matrix.Scenario, root string) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("phase panicked", "phase", name, "panic", p, "stack", string(debug.Stack()))
			result, err = Result{}, &PanicError{Phase: name, Value: p}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	switch name {
	case CleanBuild:
		if err := s.checkTools(sc); err != nil {
			return Result{}, err
		}
		return s.build(ctx, name, sc, root)
	case SecondBuild:
		return s.build(ctx, name, sc, root)
	case ModifiedBuild:
		if _, err := s.mutator.Mutate(root); err != nil {
			return Result{}, err
		}
		return s.build(ctx, name, sc, root)
	case HotpatchServe:
		return s.hotpatch(ctx, sc, root)
	default:
		return Result{}, fmt.Errorf("unknown phase %q", name)
	}
}

// checkTools resolves the tools the build tool starts on the scenario's
// behalf, such as the RUSTC_WRAPPER cache. The serve tool is resolved when
// it is spawned.
func (s *Sequencer) checkTools(sc matrix.Scenario) error {
	for _, tool := range sc.RequiredTools() {
		if tool == "dx" {
			continue
		}
		if _, err := s.lookPath(tool); err != nil {
			return &process.SpawnError{Tool: tool, Err: err}
		}
	}
	return nil
}

// build runs the build command to completion under the build timeout.
func (s *Sequencer) build(ctx context.Context, name Name, sc matrix.Scenario, root string) (Result, error) {
	buildCtx, cancel := context.WithTimeout(ctx, s.opts.BuildTimeout)
	defer cancel()

	start := s.now()
	proc, err := s.spawner.Spawn(buildCtx, s.spec(s.opts.Build, sc, root, string(name), false))
	if err != nil {
		return Result{}, err
	}
	defer s.terminate(proc, name)

	status, err := proc.WaitForExit(buildCtx)
	elapsed := s.now().Sub(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{Duration: elapsed}, &TimeoutError{Phase: name, Timeout: s.opts.BuildTimeout}
		}
		return Result{Duration: elapsed}, err
	}
	if !status.Success() {
		return Result{Duration: elapsed}, &BuildFailure{Phase: name, Status: status}
	}
	return Result{Duration: elapsed}, nil
}

// hotpatch serves the program, waits for it to announce readiness, edits
// the payload and waits for the running program to report the new value.
func (s *Sequencer) hotpatch(ctx context.Context, sc matrix.Scenario, root string) (Result, error) {
	start := s.now()
	proc, err := s.spawner.Spawn(ctx, s.spec(s.opts.Serve, sc, root, string(HotpatchServe), s.opts.ServePTY))
	if err != nil {
		return Result{}, err
	}
	defer s.terminate(proc, HotpatchServe)

	if _, err := proc.WaitForLine(ctx, process.Contains(sc.ReadyMarker()), s.opts.StartupTimeout); err != nil {
		return Result{Duration: s.now().Sub(start)}, err
	}
	ready := s.now().Sub(start)
	s.logger.Debug("serve ready", "scenario", sc.Slug(), "ready", ready)

	patchStart := s.now()
	value, err := s.mutator.Mutate(root)
	if err != nil {
		return Result{Duration: s.now().Sub(start), ReadyDuration: ready}, err
	}
	want := process.MarkerValue(payload.MarkerKey, strconv.FormatUint(uint64(value), 10))
	if _, err := proc.WaitForLine(ctx, want, s.opts.PatchTimeout); err != nil {
		return Result{Duration: s.now().Sub(start), ReadyDuration: ready}, err
	}
	patch := s.now().Sub(patchStart)

	return Result{
		Duration:      s.now().Sub(start),
		ReadyDuration: ready,
		PatchDuration: patch,
	}, nil
}

func (s *Sequencer) spec(cmd Command, sc matrix.Scenario, root, label string, pty bool) process.Spec {
	env := maps.Clone(s.opts.Env)
	if env == nil {
		env = make(map[string]string)
	}
	maps.Copy(env, sc.Env())
	return process.Spec{
		Name:    cmd.Name,
		Args:    cmd.Args,
		Dir:     root,
		Env:     env,
		Label:   label,
		PTY:     pty,
		Console: s.opts.Console,
	}
}

func (s *Sequencer) terminate(proc Process, name Name) {
	if err := proc.Terminate(s.opts.Grace); err != nil {
		s.logger.Warn("terminate", "phase", name, "err", err)
	}
}
