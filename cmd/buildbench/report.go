// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/invowk/buildbench/internal/issue"
	"github.com/invowk/buildbench/internal/phase"
	"github.com/invowk/buildbench/internal/resultlog"
)

func newReportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "report <run.jsonl>",
		Short: "Show the results of a run log as a table",
		Long: `Show the results recorded in a run log. Logs of interrupted or
crashed runs are read up to their last complete record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contents, err := resultlog.ReadFile(args[0])
			if err != nil {
				return app.fail(cmd, 1, issue.NewErrorContext().
					WithOperation("read run log").
					WithResource(args[0]).
					WithSuggestion("Pass a run-*.jsonl file from results.dir").
					Wrap(err).
					BuildError(), 0)
			}
			renderReport(app.stdout, contents)
			return nil
		},
	}
}

func renderReport(w io.Writer, c *resultlog.Contents) {
	if c.Run != nil {
		fmt.Fprintf(w, "%s %s\n", TitleStyle.Render("Run"), c.Run.ID)
		fmt.Fprintf(w, "%s %s", SubtitleStyle.Render("started"), c.Run.StartedAt.Format("2006-01-02 15:04:05 MST"))
		if c.Run.Version != "" {
			fmt.Fprintf(w, "  %s %s", SubtitleStyle.Render("version"), c.Run.Version)
		}
		fmt.Fprintf(w, "  %s %d\n\n", SubtitleStyle.Render("scenarios"), c.Run.ScenarioCount)
	}

	if len(c.Scenarios) == 0 {
		fmt.Fprintln(w, SubtitleStyle.Render("No scenario results recorded."))
	} else {
		fmt.Fprintln(w, reportTable(c.Scenarios))
	}

	switch {
	case c.Summary != nil:
		status := fmt.Sprintf("%d run, %d succeeded, %d failed", c.Summary.Total, c.Summary.Succeeded, c.Summary.Failed)
		if c.Summary.Interrupted {
			status += ", " + WarningStyle.Render("interrupted")
		}
		fmt.Fprintln(w, status)
	default:
		fmt.Fprintln(w, WarningStyle.Render("Run log is incomplete: the run did not finish."))
	}
	if c.Truncated {
		fmt.Fprintln(w, WarningStyle.Render("The last record was cut short and has been ignored."))
	}
}

func reportTable(results []phase.ScenarioResult) string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		rows = append(rows, []string{
			res.Slug,
			outcomeStyle(res.Outcome).Render(string(res.Outcome)),
			phaseCell(res, phase.CleanBuild, phaseDuration),
			phaseCell(res, phase.SecondBuild, phaseDuration),
			phaseCell(res, phase.ModifiedBuild, phaseDuration),
			phaseCell(res, phase.HotpatchServe, readyDuration),
			phaseCell(res, phase.HotpatchServe, patchDuration),
			res.Reason,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("SCENARIO", "OUTCOME", "CLEAN", "SECOND", "MODIFIED", "READY", "PATCH", "REASON").
		Rows(rows...).
		String()
}

func phaseDuration(r phase.Result) string { return formatDuration(r.Duration) }

func readyDuration(r phase.Result) string { return formatDuration(r.ReadyDuration) }

func patchDuration(r phase.Result) string { return formatDuration(r.PatchDuration) }

// phaseCell renders one measurement of a phase, or the phase outcome when
// it did not succeed. Phases that do not apply to the scenario are blank.
func phaseCell(res phase.ScenarioResult, name phase.Name, value func(phase.Result) string) string {
	r, ok := res.Phase(name)
	if !ok {
		return ""
	}
	if r.Outcome != phase.OutcomeSuccess {
		return outcomeStyle(r.Outcome).Render(string(r.Outcome))
	}
	return value(r)
}
