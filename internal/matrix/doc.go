// SPDX-License-Identifier: MPL-2.0

// Package matrix enumerates the benchmark configuration space.
//
// A Scenario is one combination of linker, cache mode, dynamic-linking mode
// and hot-patch mode. Enumerate produces the Cartesian product of the
// configured dimension values in a fixed nesting order (linker, cache,
// dynamic, hotpatch) so that identical input always yields an identical
// sequence and therefore reproducible run logs.
package matrix
