// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the buildbench CLI commands.
package cmd
