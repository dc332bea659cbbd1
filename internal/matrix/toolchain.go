// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"path"
	"runtime"
	"slices"
	"strings"
)

const (
	// FeatureDynamicLinking is the bevy feature toggled by DynamicLinking.
	FeatureDynamicLinking = "dynamic_linking"
	// FeatureHotpatching is the bevy feature toggled by HotpatchDx.
	FeatureHotpatching = "hotpatching"
)

// TargetDir returns the cargo target directory, relative to the workspace
// root, used by the scenario.
func (s Scenario) TargetDir() string {
	return path.Join("target", s.Slug())
}

// BevyFeatures returns the bevy cargo features the scenario enables.
func (s Scenario) BevyFeatures() []string {
	var features []string
	if s.Dynamic == DynamicLinking {
		features = append(features, FeatureDynamicLinking)
	}
	if s.HotpatchEnabled() {
		features = append(features, FeatureHotpatching)
	}
	return features
}

// RustFlags returns the extra rustc flags for the scenario.
func (s Scenario) RustFlags() []string {
	return s.rustFlags(runtime.GOOS)
}

func (s Scenario) rustFlags(goos string) []string {
	var flags []string
	if s.Dynamic == DynamicShareGenerics {
		flags = append(flags, "-Zshare-generics=y")
	}
	// Windows selects rust-lld through the target linker key instead.
	if s.Linker == LinkerRustLld && goos != "windows" {
		flags = append(flags, "-Zlinker-features=+lld", "-Clink-self-contained=+linker")
	}
	return flags
}

// LinkerProgram returns the linker executable to configure for the target,
// or "" when rustc's choice is kept.
func (s Scenario) LinkerProgram() string {
	return s.linkerProgram(runtime.GOOS)
}

func (s Scenario) linkerProgram(goos string) string {
	if s.Linker == LinkerRustLld && goos == "windows" {
		return "rust-lld.exe"
	}
	return ""
}

// Env returns the environment overrides cargo needs for the scenario.
// RUSTFLAGS is only set when the scenario has flags, since it replaces
// any rustflags from cargo configuration.
func (s Scenario) Env() map[string]string {
	env := make(map[string]string)
	switch s.Cache {
	case CacheNoIncremental:
		env["CARGO_INCREMENTAL"] = "0"
	case CacheSccache:
		env["RUSTC_WRAPPER"] = "sccache"
	}
	if flags := s.RustFlags(); len(flags) > 0 {
		env["RUSTFLAGS"] = strings.Join(flags, " ")
	}
	return env
}

// RequiredTools returns the executables, besides the build tool, that the
// scenario needs on PATH.
func (s Scenario) RequiredTools() []string {
	var tools []string
	if s.Cache == CacheSccache {
		tools = append(tools, "sccache")
	}
	if s.HotpatchEnabled() {
		tools = append(tools, "dx")
	}
	return tools
}

// RequiredTools returns the union of tools needed by scenarios, sorted.
func RequiredTools(scenarios []Scenario) []string {
	seen := make(map[string]struct{})
	for _, sc := range scenarios {
		for _, tool := range sc.RequiredTools() {
			seen[tool] = struct{}{}
		}
	}
	tools := make([]string, 0, len(seen))
	for tool := range seen {
		tools = append(tools, tool)
	}
	slices.Sort(tools)
	return tools
}
