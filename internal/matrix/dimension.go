// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"errors"
	"fmt"
)

const (
	// LinkerDefault uses the platform linker selected by rustc.
	LinkerDefault Linker = "default"
	// LinkerRustLld links with the bundled rust-lld.
	LinkerRustLld Linker = "rust-lld"

	// CacheIncremental keeps cargo's incremental compilation (the default).
	CacheIncremental Cache = "incremental"
	// CacheNoIncremental disables incremental compilation (CARGO_INCREMENTAL=0).
	CacheNoIncremental Cache = "no-incremental"
	// CacheSccache wraps rustc with sccache (RUSTC_WRAPPER=sccache).
	CacheSccache Cache = "sccache"

	// DynamicDefault links everything statically.
	DynamicDefault Dynamic = "default"
	// DynamicLinking enables bevy's dynamic_linking feature.
	DynamicLinking Dynamic = "dynamic-linking"
	// DynamicShareGenerics passes -Zshare-generics=y to rustc.
	DynamicShareGenerics Dynamic = "share-generics"

	// HotpatchNone skips the hot-patch serve phase.
	HotpatchNone Hotpatch = "none"
	// HotpatchDx runs the hot-patch serve phase with `dx serve --hot-patch`.
	HotpatchDx Hotpatch = "dx"
)

// ErrInvalidDimension is the sentinel wrapped by InvalidDimensionError.
var ErrInvalidDimension = errors.New("invalid dimension value")

type (
	// Linker selects the linker used for a scenario.
	Linker string

	// Cache selects the compilation cache mode.
	Cache string

	// Dynamic selects the dynamic-linking mode.
	Dynamic string

	// Hotpatch selects whether (and how) hot-patching is measured.
	Hotpatch string

	// InvalidDimensionError is returned when a configured label does not
	// name a known dimension value.
	InvalidDimensionError struct {
		Dimension string
		Value     string
	}

	// Dimensions holds the ordered value sets for each dimension.
	Dimensions struct {
		Linkers  []Linker
		Caches   []Cache
		Dynamics []Dynamic
		Hotpatch []Hotpatch
	}
)

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Dimension, e.Value)
}

func (e *InvalidDimensionError) Unwrap() error { return ErrInvalidDimension }

// AllLinkers returns every known linker value in canonical order.
func AllLinkers() []Linker { return []Linker{LinkerDefault, LinkerRustLld} }

// AllCaches returns every known cache value in canonical order.
func AllCaches() []Cache { return []Cache{CacheIncremental, CacheNoIncremental, CacheSccache} }

// AllDynamics returns every known dynamic-linking value in canonical order.
func AllDynamics() []Dynamic {
	return []Dynamic{DynamicDefault, DynamicLinking, DynamicShareGenerics}
}

// AllHotpatch returns every known hot-patch value in canonical order.
func AllHotpatch() []Hotpatch { return []Hotpatch{HotpatchNone, HotpatchDx} }

// DefaultDimensions returns the full matrix.
func DefaultDimensions() Dimensions {
	return Dimensions{
		Linkers:  AllLinkers(),
		Caches:   AllCaches(),
		Dynamics: AllDynamics(),
		Hotpatch: AllHotpatch(),
	}
}

// Size returns the number of scenarios the dimensions enumerate to.
func (d Dimensions) Size() int {
	return len(d.Linkers) * len(d.Caches) * len(d.Dynamics) * len(d.Hotpatch)
}

// ParseDimensions builds Dimensions from configuration labels. An empty
// slice for a dimension selects every known value of it; duplicate labels
// are collapsed keeping the first occurrence.
func ParseDimensions(linkers, caches, dynamics, hotpatch []string) (Dimensions, error) {
	var (
		d   Dimensions
		err error
	)
	if d.Linkers, err = parseValues("linker", linkers, AllLinkers()); err != nil {
		return Dimensions{}, err
	}
	if d.Caches, err = parseValues("cache", caches, AllCaches()); err != nil {
		return Dimensions{}, err
	}
	if d.Dynamics, err = parseValues("dynamic", dynamics, AllDynamics()); err != nil {
		return Dimensions{}, err
	}
	if d.Hotpatch, err = parseValues("hotpatch", hotpatch, AllHotpatch()); err != nil {
		return Dimensions{}, err
	}
	return d, nil
}

func parseValues[T ~string](dimension string, labels []string, known []T) ([]T, error) {
	if len(labels) == 0 {
		return known, nil
	}
	out := make([]T, 0, len(labels))
	seen := make(map[T]bool, len(labels))
	for _, label := range labels {
		v := T(label)
		found := false
		for _, k := range known {
			if k == v {
				found = true
				break
			}
		}
		if !found {
			return nil, &InvalidDimensionError{Dimension: dimension, Value: label}
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}
