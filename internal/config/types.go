// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invowk/buildbench/internal/archive"
	"github.com/invowk/buildbench/internal/matrix"
	"github.com/invowk/buildbench/internal/phase"
	"github.com/invowk/buildbench/internal/process"
	"github.com/invowk/buildbench/internal/workspace"
)

const (
	// DefaultBuildCommand is the build tool invocation used for build phases.
	DefaultBuildCommand = "cargo build"
	// DefaultServeCommand is the hot-patch serve invocation.
	DefaultServeCommand = "dx serve --hot-patch"
	// DefaultTemplateDir is the template project, relative to the working directory.
	DefaultTemplateDir = "template"
	// DefaultResultsDir is where run logs are written.
	DefaultResultsDir = "bench-results"
	// DefaultArchivePrefix is prepended to archived object keys.
	DefaultArchivePrefix = "runs"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// InvalidConfigError is returned when a decoded Config has values the
	// schema cannot reject on its own. It collects every field error.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		Template  TemplateConfig  `json:"template" mapstructure:"template"`
		Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
		Results   ResultsConfig   `json:"results" mapstructure:"results"`
		Build     BuildConfig     `json:"build" mapstructure:"build"`
		Serve     ServeConfig     `json:"serve" mapstructure:"serve"`
		Timeouts  TimeoutsConfig  `json:"timeouts" mapstructure:"timeouts"`
		Matrix    MatrixConfig    `json:"matrix" mapstructure:"matrix"`
		Archive   ArchiveConfig   `json:"archive" mapstructure:"archive"`
		UI        UIConfig        `json:"ui" mapstructure:"ui"`
	}

	// TemplateConfig locates the template project.
	TemplateConfig struct {
		Dir string `json:"dir" mapstructure:"dir"`
		// Ignore holds doublestar patterns not copied into workspaces.
		Ignore []string `json:"ignore" mapstructure:"ignore"`
	}

	// WorkspaceConfig configures where scenario workspaces are created.
	WorkspaceConfig struct {
		// BaseDir is the parent of every workspace; empty means the system temp dir.
		BaseDir string `json:"base_dir" mapstructure:"base_dir"`
	}

	// ResultsConfig configures the run log location.
	ResultsConfig struct {
		Dir string `json:"dir" mapstructure:"dir"`
	}

	// BuildConfig configures the build tool.
	BuildConfig struct {
		// Command is a shell-style command line, split into fields without
		// invoking a shell.
		Command string `json:"command" mapstructure:"command"`
		// Env holds KEY=VALUE entries added to the environment of every
		// spawned tool.
		Env []string `json:"env" mapstructure:"env"`
	}

	// ServeConfig configures the hot-patch serve tool.
	ServeConfig struct {
		Command string `json:"command" mapstructure:"command"`
		PTY     bool   `json:"pty" mapstructure:"pty"`
	}

	// TimeoutsConfig bounds every wait.
	TimeoutsConfig struct {
		Build   time.Duration `json:"build" mapstructure:"build"`
		Startup time.Duration `json:"startup" mapstructure:"startup"`
		Patch   time.Duration `json:"patch" mapstructure:"patch"`
		Grace   time.Duration `json:"grace" mapstructure:"grace"`
	}

	// MatrixConfig restricts the dimension values enumerated. An empty list
	// selects every value of that dimension.
	MatrixConfig struct {
		Linkers  []string `json:"linkers" mapstructure:"linkers"`
		Caches   []string `json:"caches" mapstructure:"caches"`
		Dynamics []string `json:"dynamics" mapstructure:"dynamics"`
		Hotpatch []string `json:"hotpatch" mapstructure:"hotpatch"`
	}

	// ArchiveConfig configures the optional run log upload.
	ArchiveConfig struct {
		Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
		Bucket    string `json:"bucket" mapstructure:"bucket"`
		Prefix    string `json:"prefix" mapstructure:"prefix"`
		AccessKey string `json:"access_key" mapstructure:"access_key"`
		SecretKey string `json:"secret_key" mapstructure:"secret_key"`
		Region    string `json:"region" mapstructure:"region"`
		UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
	}

	// UIConfig configures operator output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Template: TemplateConfig{
			Dir:    DefaultTemplateDir,
			Ignore: append([]string(nil), workspace.DefaultIgnore...),
		},
		Results: ResultsConfig{Dir: DefaultResultsDir},
		Build: BuildConfig{
			Command: DefaultBuildCommand,
		},
		Serve: ServeConfig{Command: DefaultServeCommand},
		Timeouts: TimeoutsConfig{
			Build:   phase.DefaultBuildTimeout,
			Startup: phase.DefaultStartupTimeout,
			Patch:   phase.DefaultPatchTimeout,
			Grace:   process.DefaultGrace,
		},
		Archive: ArchiveConfig{Prefix: DefaultArchivePrefix, UseSSL: true},
	}
}

// Validate checks the values the CUE schema cannot express: command lines
// that split into fields, dimension labels and positive timeouts.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := process.ParseCommand(c.Build.Command); err != nil {
		errs = append(errs, fmt.Errorf("build.command: %w", err))
	}
	if _, _, err := process.ParseCommand(c.Serve.Command); err != nil {
		errs = append(errs, fmt.Errorf("serve.command: %w", err))
	}
	if _, err := c.BuildEnv(); err != nil {
		errs = append(errs, fmt.Errorf("build.env: %w", err))
	}
	if _, err := c.Dimensions(); err != nil {
		errs = append(errs, fmt.Errorf("matrix: %w", err))
	}
	timeouts := []struct {
		key string
		d   time.Duration
	}{
		{"timeouts.build", c.Timeouts.Build},
		{"timeouts.startup", c.Timeouts.Startup},
		{"timeouts.patch", c.Timeouts.Patch},
		{"timeouts.grace", c.Timeouts.Grace},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", t.key, t.d))
		}
	}
	if ac := c.ArchiveConfig(); ac.Enabled() {
		if err := ac.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// BuildEnv parses the KEY=VALUE entries of build.env. Later entries win.
func (c *Config) BuildEnv() (map[string]string, error) {
	env := make(map[string]string, len(c.Build.Env))
	for _, entry := range c.Build.Env {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("entry %q is not KEY=VALUE", entry)
		}
		env[key] = value
	}
	return env, nil
}

// Dimensions resolves the configured matrix labels.
func (c *Config) Dimensions() (matrix.Dimensions, error) {
	return matrix.ParseDimensions(c.Matrix.Linkers, c.Matrix.Caches, c.Matrix.Dynamics, c.Matrix.Hotpatch)
}

// PhaseOptions converts the configuration into sequencer options. Console
// and Logger are left for the caller.
func (c *Config) PhaseOptions() (phase.Options, error) {
	buildName, buildArgs, err := process.ParseCommand(c.Build.Command)
	if err != nil {
		return phase.Options{}, fmt.Errorf("build.command: %w", err)
	}
	serveName, serveArgs, err := process.ParseCommand(c.Serve.Command)
	if err != nil {
		return phase.Options{}, fmt.Errorf("serve.command: %w", err)
	}
	env, err := c.BuildEnv()
	if err != nil {
		return phase.Options{}, fmt.Errorf("build.env: %w", err)
	}
	return phase.Options{
		Build:          phase.Command{Name: buildName, Args: buildArgs},
		Serve:          phase.Command{Name: serveName, Args: serveArgs},
		ServePTY:       c.Serve.PTY,
		Env:            env,
		BuildTimeout:   c.Timeouts.Build,
		StartupTimeout: c.Timeouts.Startup,
		PatchTimeout:   c.Timeouts.Patch,
		Grace:          c.Timeouts.Grace,
	}, nil
}

// WorkspaceOptions converts the configuration into workspace manager options.
func (c *Config) WorkspaceOptions() workspace.Options {
	return workspace.Options{
		TemplateDir: c.Template.Dir,
		BaseDir:     c.Workspace.BaseDir,
		Ignore:      c.Template.Ignore,
	}
}

// ArchiveConfig converts the archive section.
func (c *Config) ArchiveConfig() archive.Config {
	return archive.Config{
		Endpoint:  c.Archive.Endpoint,
		Bucket:    c.Archive.Bucket,
		Prefix:    c.Archive.Prefix,
		AccessKey: c.Archive.AccessKey,
		SecretKey: c.Archive.SecretKey,
		Region:    c.Archive.Region,
		UseSSL:    c.Archive.UseSSL,
	}
}
