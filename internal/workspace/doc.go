// SPDX-License-Identifier: MPL-2.0

// Package workspace creates and destroys the disposable project directories
// a scenario is built in.
//
// A workspace is a copy of the template project with scenario-specific
// substitutions applied: cargo configuration, manifest, toolchain file and
// the generated payload program. Every Create is paired with exactly one
// Destroy; Manager.With enforces the pairing.
package workspace
