// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/invowk/buildbench/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "buildbench"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// LocalConfigFile is looked up in the working directory when the user
	// config directory has no config file.
	LocalConfigFile = AppName + "." + ConfigFileExt
	// EnvPrefix prefixes environment overrides (BUILDBENCH_TIMEOUTS_BUILD=45m).
	EnvPrefix = "BUILDBENCH"

	maxConfigFileSize = 5 * 1024 * 1024
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the buildbench configuration directory: %APPDATA% on
// Windows, ~/Library/Application Support on macOS and $XDG_CONFIG_HOME
// (defaulting to ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// loadWithOptions loads defaults, the first config file found and
// environment overrides, in increasing precedence. It returns the path of
// the file that was loaded, or "" when only defaults applied.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	// An explicit --config path is used exclusively.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'buildbench config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		for _, candidate := range []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			LocalConfigFile,
		} {
			if fileExists(candidate) {
				resolvedPath = candidate
				break
			}
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'buildbench config show' for every key and its default").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Matrix labels: linkers default|rust-lld, caches incremental|no-incremental|sccache").
			WithSuggestion("Matrix labels: dynamics default|dynamic-linking|share-generics, hotpatch none|dx").
			WithSuggestion("Check " + EnvPrefix + "_* environment overrides").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("template.dir", defaults.Template.Dir)
	v.SetDefault("template.ignore", defaults.Template.Ignore)
	v.SetDefault("workspace.base_dir", defaults.Workspace.BaseDir)
	v.SetDefault("results.dir", defaults.Results.Dir)
	v.SetDefault("build.command", defaults.Build.Command)
	v.SetDefault("build.env", defaults.Build.Env)
	v.SetDefault("serve.command", defaults.Serve.Command)
	v.SetDefault("serve.pty", defaults.Serve.PTY)
	v.SetDefault("timeouts.build", defaults.Timeouts.Build)
	v.SetDefault("timeouts.startup", defaults.Timeouts.Startup)
	v.SetDefault("timeouts.patch", defaults.Timeouts.Patch)
	v.SetDefault("timeouts.grace", defaults.Timeouts.Grace)
	v.SetDefault("matrix.linkers", defaults.Matrix.Linkers)
	v.SetDefault("matrix.caches", defaults.Matrix.Caches)
	v.SetDefault("matrix.dynamics", defaults.Matrix.Dynamics)
	v.SetDefault("matrix.hotpatch", defaults.Matrix.Hotpatch)
	v.SetDefault("archive.endpoint", defaults.Archive.Endpoint)
	v.SetDefault("archive.bucket", defaults.Archive.Bucket)
	v.SetDefault("archive.prefix", defaults.Archive.Prefix)
	v.SetDefault("archive.access_key", defaults.Archive.AccessKey)
	v.SetDefault("archive.secret_key", defaults.Archive.SecretKey)
	v.SetDefault("archive.region", defaults.Archive.Region)
	v.SetDefault("archive.use_ssl", defaults.Archive.UseSSL)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper. Validation uses Concrete(false) since
// every config field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	// Merging keeps the defaults for keys the file leaves out.
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// formatCUEError flattens CUE errors into "file: path: message" lines.
func formatCUEError(err error, filePath string) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(list))
	for _, e := range list {
		path := strings.Join(cueerrors.Path(e), ".")
		msg := e.Error()
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		if path != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", path, msg))
		} else {
			lines = append(lines, msg)
		}
	}
	lines = slices.Compact(lines)

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s: %w", filePath, lines[0], err)
	}
	return fmt.Errorf("%s: %d errors:\n  %s\n%w", filePath, len(lines), strings.Join(lines, "\n  "), err)
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// CreateDefaultConfig writes the default configuration to the user config
// directory unless a config file already exists there. It returns the path.
func CreateDefaultConfig() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// GenerateCUE renders cfg as a CUE document that validates against the
// embedded schema. Secret keys are never written.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// buildbench configuration file\n\n")

	sb.WriteString("template: {\n")
	sb.WriteString(fmt.Sprintf("\tdir: %q\n", cfg.Template.Dir))
	sb.WriteString(fmt.Sprintf("\tignore: %s\n", cueList(cfg.Template.Ignore)))
	sb.WriteString("}\n")

	sb.WriteString("\nworkspace: {\n")
	sb.WriteString(fmt.Sprintf("\tbase_dir: %q\n", cfg.Workspace.BaseDir))
	sb.WriteString("}\n")

	sb.WriteString("\nresults: {\n")
	sb.WriteString(fmt.Sprintf("\tdir: %q\n", cfg.Results.Dir))
	sb.WriteString("}\n")

	sb.WriteString("\nbuild: {\n")
	sb.WriteString(fmt.Sprintf("\tcommand: %q\n", cfg.Build.Command))
	writeListField(&sb, "env", cfg.Build.Env)
	sb.WriteString("}\n")

	sb.WriteString("\nserve: {\n")
	sb.WriteString(fmt.Sprintf("\tcommand: %q\n", cfg.Serve.Command))
	sb.WriteString(fmt.Sprintf("\tpty: %v\n", cfg.Serve.PTY))
	sb.WriteString("}\n")

	sb.WriteString("\ntimeouts: {\n")
	sb.WriteString(fmt.Sprintf("\tbuild: %q\n", cfg.Timeouts.Build.String()))
	sb.WriteString(fmt.Sprintf("\tstartup: %q\n", cfg.Timeouts.Startup.String()))
	sb.WriteString(fmt.Sprintf("\tpatch: %q\n", cfg.Timeouts.Patch.String()))
	sb.WriteString(fmt.Sprintf("\tgrace: %q\n", cfg.Timeouts.Grace.String()))
	sb.WriteString("}\n")

	if len(cfg.Matrix.Linkers)+len(cfg.Matrix.Caches)+len(cfg.Matrix.Dynamics)+len(cfg.Matrix.Hotpatch) > 0 {
		sb.WriteString("\nmatrix: {\n")
		writeListField(&sb, "linkers", cfg.Matrix.Linkers)
		writeListField(&sb, "caches", cfg.Matrix.Caches)
		writeListField(&sb, "dynamics", cfg.Matrix.Dynamics)
		writeListField(&sb, "hotpatch", cfg.Matrix.Hotpatch)
		sb.WriteString("}\n")
	}

	if cfg.Archive.Endpoint != "" {
		sb.WriteString("\narchive: {\n")
		sb.WriteString(fmt.Sprintf("\tendpoint: %q\n", cfg.Archive.Endpoint))
		if cfg.Archive.Bucket != "" {
			sb.WriteString(fmt.Sprintf("\tbucket: %q\n", cfg.Archive.Bucket))
		}
		sb.WriteString(fmt.Sprintf("\tprefix: %q\n", cfg.Archive.Prefix))
		if cfg.Archive.Region != "" {
			sb.WriteString(fmt.Sprintf("\tregion: %q\n", cfg.Archive.Region))
		}
		sb.WriteString(fmt.Sprintf("\tuse_ssl: %v\n", cfg.Archive.UseSSL))
		sb.WriteString("}\n")
	}

	sb.WriteString("\nui: {\n")
	sb.WriteString(fmt.Sprintf("\tverbose: %v\n", cfg.UI.Verbose))
	sb.WriteString("}\n")

	return sb.String()
}

func writeListField(sb *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("\t%s: %s\n", key, cueList(values)))
}

func cueList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
