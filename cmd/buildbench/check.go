// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"

	"github.com/spf13/cobra"

	"github.com/invowk/buildbench/internal/config"
	"github.com/invowk/buildbench/internal/issue"
	"github.com/invowk/buildbench/internal/matrix"
	"github.com/invowk/buildbench/internal/process"
)

// errCheckFailed is returned by `check` when a prerequisite is missing.
var errCheckFailed = errors.New("prerequisites missing")

func newCheckCommand(app *App) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the tools and template a run needs are available",
		Long: `Check that the build tool, the serve tool and the compilation cache
required by the configured matrix are on PATH, and that the template
project exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, 1, err, issue.ConfigLoadFailedId)
			}
			cfg := loaded.Config
			scenarios, err := selectScenarios(cfg, only)
			if err != nil {
				return app.fail(cmd, 1, err, 0)
			}

			missingTool := false
			fmt.Fprintln(app.stdout, TitleStyle.Render("Tools"))
			for _, tool := range requiredTools(cfg, scenarios) {
				path, lookErr := exec.LookPath(tool)
				if lookErr != nil {
					missingTool = true
					fmt.Fprintf(app.stdout, "  %s %s %s\n", ErrorStyle.Render("✗"), CmdStyle.Render(tool), SubtitleStyle.Render("not found"))
					continue
				}
				fmt.Fprintf(app.stdout, "  %s %s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(tool), SubtitleStyle.Render(path))
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Template"))
			missingTemplate := false
			if info, statErr := os.Stat(cfg.Template.Dir); statErr != nil || !info.IsDir() {
				missingTemplate = true
				fmt.Fprintf(app.stdout, "  %s %s %s\n", ErrorStyle.Render("✗"), cfg.Template.Dir, SubtitleStyle.Render("not a directory"))
			} else {
				fmt.Fprintf(app.stdout, "  %s %s\n", SuccessStyle.Render("✓"), cfg.Template.Dir)
			}

			switch {
			case missingTool:
				return app.fail(cmd, 1, errCheckFailed, issue.ToolNotFoundId)
			case missingTemplate:
				return app.fail(cmd, 1, errCheckFailed, issue.TemplateNotFoundId)
			}
			fmt.Fprintln(app.stdout, SuccessStyle.Render("Ready to run."))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&only, "only", nil, "check only for scenarios whose slug matches this glob (repeatable)")

	return cmd
}

// requiredTools lists the executables a run of scenarios spawns: the build
// tool, the serve tool when a scenario hot-patches, and sccache when a
// scenario wraps rustc with it.
func requiredTools(cfg *config.Config, scenarios []matrix.Scenario) []string {
	var tools []string
	if name, _, err := process.ParseCommand(cfg.Build.Command); err == nil {
		tools = append(tools, name)
	}
	serve, _, serveErr := process.ParseCommand(cfg.Serve.Command)
	for _, tool := range matrix.RequiredTools(scenarios) {
		// the configured serve command replaces the default dx
		if tool == "dx" && serveErr == nil {
			tool = serve
		}
		tools = append(tools, tool)
	}
	slices.Sort(tools)
	return slices.Compact(tools)
}
