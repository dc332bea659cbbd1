// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/invowk/buildbench/internal/issue"
)

func newMatrixCommand(app *App) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "List the configured scenarios",
		Long: `List the scenarios the configured matrix enumerates, in run order,
with the environment each scenario applies to the build tools.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, 1, err, issue.ConfigLoadFailedId)
			}
			scenarios, err := selectScenarios(loaded.Config, only)
			if err != nil {
				return app.fail(cmd, 1, err, 0)
			}

			for i, sc := range scenarios {
				fmt.Fprintf(app.stdout, "%3d  %s\n     %s\n", i+1, CmdStyle.Render(sc.Slug()), SubtitleStyle.Render(sc.Describe()))
				if app.verbose {
					for _, kv := range envPairs(sc.Env()) {
						fmt.Fprintf(app.stdout, "     %s\n", kv)
					}
				}
			}
			fmt.Fprintf(app.stdout, "\n%d scenario(s)\n", len(scenarios))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&only, "only", nil, "list only scenarios whose slug matches this glob (repeatable)")

	return cmd
}

// envPairs renders env as sorted KEY=VALUE strings.
func envPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	slices.Sort(pairs)
	return pairs
}
