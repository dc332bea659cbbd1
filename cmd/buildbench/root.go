// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/invowk/buildbench/internal/config"
	"github.com/invowk/buildbench/internal/issue"
	"github.com/invowk/buildbench/internal/logging"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// App wires CLI services and shared dependencies. Cobra handlers receive
	// an App and take configuration and output writers from it.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer

		// set from persistent flags
		configPath string
		verbose    bool
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}
)

// NewApp creates an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildbench",
		Short: "Benchmark Rust/Bevy build configurations",
		Long: TitleStyle.Render("buildbench") + SubtitleStyle.Render(" - Benchmark Rust/Bevy build configurations") + `

buildbench runs a matrix of build configurations (linker, compilation
cache, dynamic linking, hot-patching) against a template project. Each
scenario gets a fresh copy of the template, is built clean, rebuilt, rebuilt
after a one-line source change and, for hot-patch scenarios, served while
the change is patched into the running program.

` + SubtitleStyle.Render("Examples:") + `
  buildbench matrix                   List the configured scenarios
  buildbench check                    Check that the required tools are installed
  buildbench run --only 'rust-lld-*'  Run a subset of the matrix
  buildbench report bench-results/run-20261015T120000Z.jsonl`,
		SilenceUsage: true,
	}

	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/buildbench/config.cue, then ./buildbench.cue)")

	rootCmd.AddCommand(newRunCommand(app))
	rootCmd.AddCommand(newMatrixCommand(app))
	rootCmd.AddCommand(newReportCommand(app))
	rootCmd.AddCommand(newCheckCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// loadConfig loads the effective configuration and applies ui.verbose
// when --verbose was not given.
func (a *App) loadConfig(ctx context.Context) (*config.Loaded, error) {
	loaded, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
	if err != nil {
		return nil, err
	}
	if !a.verbose {
		a.verbose = loaded.Config.UI.Verbose
	}
	return loaded, nil
}

func (a *App) logger() *log.Logger {
	return logging.New(a.stderr, a.verbose)
}

// fail prints err for the operator, with the matching issue rendered when
// one is given, and returns an ExitError carrying code.
func (a *App) fail(cmd *cobra.Command, code int, err error, id issue.Id) error {
	cmd.SilenceErrors = true
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, a.verbose))
	if id != 0 {
		if rendered, renderErr := issue.Get(id).Render("dark"); renderErr == nil {
			fmt.Fprint(a.stderr, rendered)
		}
	}
	return &ExitError{Code: code, Err: err}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
