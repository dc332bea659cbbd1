// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/buildbench/internal/config"
	"github.com/invowk/buildbench/internal/issue"
)

// newConfigCommand creates the `buildbench config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage buildbench configuration",
		Long: `Manage buildbench configuration.

Configuration is read from the first file found of:
  - the --config flag
  - Linux: ~/.config/buildbench/config.cue
    macOS: ~/Library/Application Support/buildbench/config.cue
    Windows: %APPDATA%\buildbench\config.cue
  - ./buildbench.cue

BUILDBENCH_* environment variables override file values, for example
BUILDBENCH_TIMEOUTS_BUILD=45m or BUILDBENCH_MATRIX_CACHES=sccache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, 1, err, issue.ConfigLoadFailedId)
			}

			source := SubtitleStyle.Render("(using defaults)")
			if loaded.Path != "" {
				source = loaded.Path
			}
			fmt.Fprintf(app.stderr, "%s: %s\n\n", CmdStyle.Render("Config file"), source)
			fmt.Fprint(app.stdout, config.GenerateCUE(loaded.Config))
			if loaded.Config.Archive.SecretKey != "" {
				fmt.Fprintln(app.stderr, SubtitleStyle.Render("\n// archive credentials are set but not shown"))
			}
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return app.fail(cmd, 1, err, 0)
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Configuration file:"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the user configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return app.fail(cmd, 1, err, 0)
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	return cfgCmd
}
