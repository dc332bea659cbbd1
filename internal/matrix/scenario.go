// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// payloadMix is folded into the seed to derive the initial payload value.
const payloadMix uint64 = 0x9e37_79b9_7f4a_7c15

// Scenario is one immutable point in the configuration matrix. It is
// comparable and its identity is the tuple of its fields.
type Scenario struct {
	Linker   Linker   `json:"linker"`
	Cache    Cache    `json:"cache"`
	Dynamic  Dynamic  `json:"dynamic"`
	Hotpatch Hotpatch `json:"hotpatch"`
}

// Enumerate returns the ordered Cartesian product of d. The order is
// linker-major, hotpatch-minor, following the order of the value slices.
func Enumerate(d Dimensions) []Scenario {
	scenarios := make([]Scenario, 0, d.Size())
	for _, linker := range d.Linkers {
		for _, cache := range d.Caches {
			for _, dynamic := range d.Dynamics {
				for _, hotpatch := range d.Hotpatch {
					scenarios = append(scenarios, Scenario{
						Linker:   linker,
						Cache:    cache,
						Dynamic:  dynamic,
						Hotpatch: hotpatch,
					})
				}
			}
		}
	}
	return scenarios
}

// Filter keeps the scenarios whose slug matches at least one doublestar
// pattern. With no patterns every scenario is kept.
func Filter(scenarios []Scenario, patterns []string) ([]Scenario, error) {
	if len(patterns) == 0 {
		return scenarios, nil
	}
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid scenario filter %q", pat)
		}
	}
	out := make([]Scenario, 0, len(scenarios))
	for _, sc := range scenarios {
		slug := sc.Slug()
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, slug); ok {
				out = append(out, sc)
				break
			}
		}
	}
	return out, nil
}

// Slug returns the scenario's human-readable identifier, used for
// workspace names, package names and log records.
func (s Scenario) Slug() string {
	linker := "default-linker"
	if s.Linker != LinkerDefault {
		linker = string(s.Linker)
	}
	dynamic := "default-dynamic"
	if s.Dynamic != DynamicDefault {
		dynamic = string(s.Dynamic)
	}
	hotpatch := "no-hotpatch"
	if s.Hotpatch != HotpatchNone {
		hotpatch = string(s.Hotpatch) + "-hotpatch"
	}
	return strings.Join([]string{linker, string(s.Cache), dynamic, hotpatch}, "-")
}

// Describe returns a one-line key=value rendering of the scenario.
func (s Scenario) Describe() string {
	return fmt.Sprintf("linker=%s, cache=%s, dynamic=%s, hotpatch=%s",
		s.Linker, s.Cache, s.Dynamic, s.Hotpatch)
}

// HotpatchEnabled reports whether the hot-patch serve phase applies.
func (s Scenario) HotpatchEnabled() bool {
	return s.Hotpatch != "" && s.Hotpatch != HotpatchNone
}

// Seed returns a stable 64-bit value derived from the slug.
func (s Scenario) Seed() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.Slug()))
	return h.Sum64()
}

// ReadyMarker returns the token the generated program prints on startup.
// It embeds the slug and seed so that output from a stale process of a
// different scenario can never satisfy the wait.
func (s Scenario) ReadyMarker() string {
	return fmt.Sprintf("PAYLOAD_SYSTEM_IS_READY__%s__%016x", s.Slug(), s.Seed())
}

// InitialPayload returns the payload value written into a fresh workspace.
func (s Scenario) InitialPayload() uint64 {
	return bits.RotateLeft64(s.Seed(), 17) ^ payloadMix
}
