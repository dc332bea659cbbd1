// SPDX-License-Identifier: MPL-2.0

// Package config handles buildbench configuration using Viper with CUE as the file format.
//
// Configuration is read from the first of: the --config file, config.cue in the
// user config directory (buildbench/ under $XDG_CONFIG_HOME, ~/Library/Application
// Support or %APPDATA%), and buildbench.cue in the working directory. Files are
// validated against the embedded CUE schema (config_schema.cue); keys the file
// leaves out keep their defaults, and BUILDBENCH_* environment variables
// override both.
package config
