// SPDX-License-Identifier: MPL-2.0

// Package process spawns build and serve tools and observes their output.
//
// Each spawned process runs in its own process group (or session, under a
// pseudo-terminal) so that Terminate reaches every descendant. Standard
// output and standard error share a single pipe that is drained by a
// reader goroutine for the whole life of the process, so a chatty tool can
// never block on a full pipe while the caller waits for something else.
// Lines are mirrored to an optional operator console and kept in a
// buffer consumed by WaitForLine.
package process
