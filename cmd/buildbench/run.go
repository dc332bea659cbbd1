// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/invowk/buildbench/internal/archive"
	"github.com/invowk/buildbench/internal/config"
	"github.com/invowk/buildbench/internal/issue"
	"github.com/invowk/buildbench/internal/matrix"
	"github.com/invowk/buildbench/internal/orchestrator"
	"github.com/invowk/buildbench/internal/payload"
	"github.com/invowk/buildbench/internal/phase"
	"github.com/invowk/buildbench/internal/process"
	"github.com/invowk/buildbench/internal/resultlog"
	"github.com/invowk/buildbench/internal/workspace"
)

// archiveTimeout bounds the run log upload, which still happens after an
// interrupt.
const archiveTimeout = 2 * time.Minute

type runParams struct {
	only   []string
	dryRun bool
}

func newRunCommand(app *App) *cobra.Command {
	var p runParams

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark matrix",
		Long: `Run every configured scenario, one after another.

Each scenario's result is appended to a run log in results.dir as soon as
it completes, so an interrupted run keeps everything measured so far.
Interrupting (Ctrl+C) stops after the current scenario has been recorded
and its workspace removed.

Exit status is 0 when every scenario succeeded, 2 when some failed, 130 when
interrupted and 1 on a fatal error.`,
		Example: `  # Run the full matrix
  buildbench run

  # Only sccache scenarios with hot-patching
  buildbench run --only '*-sccache-*-dx-hotpatch'

  # Show what would run
  buildbench run --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd, app, p)
		},
	}

	cmd.Flags().StringArrayVar(&p.only, "only", nil, "run only scenarios whose slug matches this glob (repeatable)")
	cmd.Flags().BoolVar(&p.dryRun, "dry-run", false, "list the scenarios and tools a run would use, without running")

	return cmd
}

func runMatrix(cmd *cobra.Command, app *App, p runParams) error {
	ctx := cmd.Context()

	loaded, err := app.loadConfig(ctx)
	if err != nil {
		return app.fail(cmd, 1, err, issue.ConfigLoadFailedId)
	}
	cfg := loaded.Config

	scenarios, err := selectScenarios(cfg, p.only)
	if err != nil {
		return app.fail(cmd, 1, err, 0)
	}
	if len(scenarios) == 0 {
		return app.fail(cmd, 1, fmt.Errorf("no scenario matches %s", strings.Join(p.only, ", ")), 0)
	}

	if p.dryRun {
		printDryRun(app.stdout, cfg, scenarios)
		return nil
	}

	logger := app.logger()

	phaseOpts, err := cfg.PhaseOptions()
	if err != nil {
		return app.fail(cmd, 1, err, issue.ConfigLoadFailedId)
	}
	phaseOpts.Console = app.stdout
	phaseOpts.Logger = logger
	seq := phase.NewSequencer(phase.NewSpawner(process.NewRunner(logger)), payload.NewMutator(), phaseOpts)

	wsOpts := cfg.WorkspaceOptions()
	wsOpts.Logger = logger
	workspaces := workspace.NewManager(wsOpts)

	rl, err := resultlog.Create(cfg.Results.Dir, resultlog.RunInfo{
		ScenarioCount: len(scenarios),
		Version:       Version,
	})
	if err != nil {
		return app.fail(cmd, 1, issue.NewErrorContext().
			WithOperation("create result log").
			WithResource(cfg.Results.Dir).
			WithSuggestion("Point results.dir at a writable directory").
			Wrap(err).
			BuildError(), issue.ResultDirUnwritableId)
	}

	fmt.Fprintf(app.stdout, "%s %d scenario(s), results in %s\n\n",
		TitleStyle.Render("Benchmarking"), len(scenarios), CmdStyle.Render(rl.Path()))

	var failedKinds []phase.ErrorKind
	orch := orchestrator.New(workspaces, seq, rl, logger)
	orch.OnResult = func(res phase.ScenarioResult) {
		printScenarioResult(app.stdout, res)
		if !res.Succeeded() {
			failedKinds = append(failedKinds, res.ErrorKind)
		}
	}

	sum, runErr := orch.Run(ctx, scenarios)

	fmt.Fprintln(app.stdout)
	printSummary(app.stdout, sum)
	for _, id := range failureHints(failedKinds) {
		if rendered, renderErr := issue.Get(id).Render("dark"); renderErr == nil {
			fmt.Fprint(app.stderr, rendered)
		}
	}

	if cfg.ArchiveConfig().Enabled() {
		uploadRunLog(ctx, app, cfg, sum.LogPath)
	}

	switch {
	case runErr != nil:
		return app.fail(cmd, 1, runError(runErr, cfg), runErrorIssue(runErr))
	case sum.Interrupted:
		cmd.SilenceErrors = true
		return &ExitError{Code: ExitInterrupted}
	case sum.Failed > 0:
		cmd.SilenceErrors = true
		return &ExitError{Code: ExitScenarioFailures}
	}
	return nil
}

func selectScenarios(cfg *config.Config, only []string) ([]matrix.Scenario, error) {
	dims, err := cfg.Dimensions()
	if err != nil {
		return nil, err
	}
	return matrix.Filter(matrix.Enumerate(dims), only)
}

// runError adds operator context to the errors that abort a run.
func runError(err error, cfg *config.Config) error {
	switch {
	case errors.Is(err, workspace.ErrTemplateNotFound):
		return issue.NewErrorContext().
			WithOperation("prepare workspaces").
			WithResource(cfg.Template.Dir).
			WithSuggestion("Set template.dir to the template project").
			Wrap(err).
			BuildError()
	case errors.Is(err, workspace.ErrBaseDir):
		return issue.NewErrorContext().
			WithOperation("prepare workspaces").
			WithResource(cfg.Workspace.BaseDir).
			WithSuggestion("Point workspace.base_dir at a writable directory, or leave it empty for the system temp dir").
			Wrap(err).
			BuildError()
	case errors.Is(err, resultlog.ErrLogWrite):
		return issue.NewErrorContext().
			WithOperation("record scenario result").
			WithResource(cfg.Results.Dir).
			WithSuggestion("Check free disk space").
			Wrap(err).
			BuildError()
	}
	return err
}

func runErrorIssue(err error) issue.Id {
	switch {
	case errors.Is(err, workspace.ErrTemplateNotFound):
		return issue.TemplateNotFoundId
	case errors.Is(err, resultlog.ErrLogWrite):
		return issue.ResultDirUnwritableId
	}
	return 0
}

// failureHints returns the catalog issues explaining the given failure
// kinds, once each, in order of first occurrence.
func failureHints(kinds []phase.ErrorKind) []issue.Id {
	var ids []issue.Id
	for _, kind := range kinds {
		var id issue.Id
		switch kind {
		case phase.KindSpawn:
			id = issue.ToolNotFoundId
		case phase.KindBuildFailure:
			id = issue.BuildFailedId
		case phase.KindMarkerTimeout, phase.KindProcessExited:
			id = issue.MarkerTimeoutId
		case phase.KindPayloadNotFound:
			id = issue.PayloadNotFoundId
		default:
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// uploadRunLog archives the run log. Failures are reported as warnings.
func uploadRunLog(ctx context.Context, app *App, cfg *config.Config, path string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	uploader, err := archive.New(cfg.ArchiveConfig())
	if err == nil {
		var key string
		if key, err = uploader.Upload(ctx, path); err == nil {
			fmt.Fprintf(app.stdout, "%s s3://%s/%s\n", SuccessStyle.Render("Archived run log to"), cfg.Archive.Bucket, key)
			return
		}
	}
	fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+"run log not archived: "+err.Error())
}

func printDryRun(w io.Writer, cfg *config.Config, scenarios []matrix.Scenario) {
	fmt.Fprintf(w, "%s %d scenario(s)\n\n", TitleStyle.Render("Would run"), len(scenarios))
	for _, sc := range scenarios {
		fmt.Fprintf(w, "  %s\n    %s\n", CmdStyle.Render(sc.Slug()), SubtitleStyle.Render(sc.Describe()))
		for _, kv := range envPairs(sc.Env()) {
			fmt.Fprintf(w, "    %s\n", kv)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s: %s\n", CmdStyle.Render("template"), cfg.Template.Dir)
	fmt.Fprintf(w, "%s: %s\n", CmdStyle.Render("results"), cfg.Results.Dir)
	fmt.Fprintf(w, "%s: %s\n", CmdStyle.Render("tools"), strings.Join(requiredTools(cfg, scenarios), ", "))
}

func printScenarioResult(w io.Writer, res phase.ScenarioResult) {
	fmt.Fprintf(w, "\n%s %s\n", outcomeStyle(res.Outcome).Render(string(res.Outcome)), CmdStyle.Render(res.Slug))
	for _, ph := range res.Phases {
		line := fmt.Sprintf("  %-15s %s", ph.Name, outcomeStyle(ph.Outcome).Render(string(ph.Outcome)))
		if ph.Outcome == phase.OutcomeSuccess {
			line += " " + formatDuration(ph.Duration)
			if ph.Name == phase.HotpatchServe {
				line += fmt.Sprintf(" (ready %s, patch %s)", formatDuration(ph.ReadyDuration), formatDuration(ph.PatchDuration))
			}
		}
		fmt.Fprintln(w, line)
	}
	if res.Reason != "" {
		fmt.Fprintf(w, "  %s %s\n", ErrorStyle.Render("reason:"), res.Reason)
	}
}

func printSummary(w io.Writer, sum orchestrator.Summary) {
	status := SuccessStyle.Render("All scenarios completed.")
	switch {
	case sum.Interrupted:
		status = WarningStyle.Render("Run interrupted.")
	case sum.Failed > 0:
		status = ErrorStyle.Render(fmt.Sprintf("%d scenario(s) failed.", sum.Failed))
	}
	fmt.Fprintln(w, status)
	fmt.Fprintf(w, "%d run, %d succeeded, %d failed\n", sum.Total, sum.Succeeded, sum.Failed)
	fmt.Fprintf(w, "%s: %s\n", CmdStyle.Render("run log"), sum.LogPath)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
