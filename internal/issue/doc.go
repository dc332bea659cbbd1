// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with operator-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. The Issue catalog holds longer Markdown guidance for
// the failure classes an operator can fix (missing tools, missing template,
// unwritable result directory), rendered with glamour by the CLI.
package issue
