// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/invowk/buildbench/internal/logging"
	"github.com/invowk/buildbench/internal/matrix"
)

var (
	// ErrWorkspaceCreation is the sentinel matched by CreationError.
	ErrWorkspaceCreation = errors.New("workspace creation failed")

	// ErrBaseDir is returned by Prepare when the directory workspaces are
	// created under cannot be used. It aborts the whole run.
	ErrBaseDir = errors.New("workspace base directory unusable")

	// ErrTemplateNotFound is returned by Prepare when the template project
	// directory does not exist.
	ErrTemplateNotFound = errors.New("template project not found")
)

// DefaultIgnore lists the template paths never copied into a workspace.
var DefaultIgnore = []string{"target/**", ".git/**"}

type (
	// Options configures a Manager.
	Options struct {
		// TemplateDir is the template project copied into each workspace.
		TemplateDir string
		// BaseDir is the parent of every workspace. Empty means os.TempDir().
		BaseDir string
		// Ignore holds doublestar patterns, relative to TemplateDir, that are
		// not copied. Nil means DefaultIgnore.
		Ignore []string
		Logger *log.Logger
	}

	// Manager creates and destroys workspaces.
	Manager struct {
		opts   Options
		logger *log.Logger
	}

	// Workspace is a live, scenario-specific project directory.
	Workspace struct {
		Root     string
		Scenario matrix.Scenario
		alive    atomic.Bool
	}

	// CreationError reports a failure while producing a workspace. It is
	// fatal for the scenario only.
	CreationError struct {
		Slug string
		Step string
		Err  error
	}
)

func (e *CreationError) Error() string {
	return fmt.Sprintf("create workspace for %s: %s: %v", e.Slug, e.Step, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// Is matches ErrWorkspaceCreation in addition to the wrapped cause.
func (e *CreationError) Is(target error) bool { return target == ErrWorkspaceCreation }

// Alive reports whether the workspace has not been destroyed yet.
func (w *Workspace) Alive() bool { return w.alive.Load() }

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.BaseDir == "" {
		opts.BaseDir = os.TempDir()
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	return &Manager{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// BaseDir returns the directory workspaces are created under.
func (m *Manager) BaseDir() string { return m.opts.BaseDir }

// Prepare checks the run-level preconditions: the template exists and the
// base directory exists (it is created if missing) and is writable.
func (m *Manager) Prepare() error {
	info, err := os.Stat(m.opts.TemplateDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, m.opts.TemplateDir)
	}
	if err := os.MkdirAll(m.opts.BaseDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrBaseDir, err)
	}
	probe, err := os.CreateTemp(m.opts.BaseDir, ".buildbench-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBaseDir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// Create produces a fresh workspace for sc. The directory name carries the
// slug plus a unique token, so two workspaces never share a root. On
// failure nothing is left behind.
func (m *Manager) Create(sc matrix.Scenario) (*Workspace, error) {
	slug := sc.Slug()
	root, err := os.MkdirTemp(m.opts.BaseDir, "bench-"+slug+"-*")
	if err != nil {
		return nil, &CreationError{Slug: slug, Step: "make directory", Err: err}
	}

	fail := func(step string, err error) (*Workspace, error) {
		if rmErr := os.RemoveAll(root); rmErr != nil {
			m.logger.Warn("remove partial workspace", "path", root, "err", rmErr)
		}
		return nil, &CreationError{Slug: slug, Step: step, Err: err}
	}

	if err := copyTemplate(m.opts.TemplateDir, root, m.opts.Ignore); err != nil {
		return fail("copy template", err)
	}
	if err := applySubstitutions(root, sc); err != nil {
		return fail("apply substitutions", err)
	}

	ws := &Workspace{Root: root, Scenario: sc}
	ws.alive.Store(true)
	m.logger.Debug("workspace created", "slug", slug, "path", root)
	return ws, nil
}

// Destroy removes the workspace directory. It is idempotent. A failure is
// logged as a warning and returned for inspection, but callers must not
// treat it as a scenario failure.
func (m *Manager) Destroy(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	if !ws.alive.Swap(false) {
		return nil
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		m.logger.Warn("remove workspace", "path", ws.Root, "err", err)
		return fmt.Errorf("remove workspace %s: %w", ws.Root, err)
	}
	m.logger.Debug("workspace removed", "path", ws.Root)
	return nil
}

// With creates a workspace for sc, runs fn and destroys the workspace on
// every path out of fn, panics included. The creation error, if any, is
// returned without calling fn.
func (m *Manager) With(sc matrix.Scenario, fn func(*Workspace) error) error {
	ws, err := m.Create(sc)
	if err != nil {
		return err
	}
	defer func() { _ = m.Destroy(ws) }()
	return fn(ws)
}

// Path joins elem onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Root}, elem...)...)
}
