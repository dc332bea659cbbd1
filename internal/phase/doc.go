// SPDX-License-Identifier: MPL-2.0

// Package phase runs the fixed sequence of measured build phases against a
// scenario workspace and turns whatever happens into a ScenarioResult.
//
// The sequence is clean build, second (no-op) build, modified build and,
// for hot-patch scenarios, a hot-patch serve phase. The first failure ends
// the sequence; later phases are recorded as skipped. Errors, including
// panics, never cross the sequencer boundary: they become a failed result
// carrying a reason and an error kind.
package phase
