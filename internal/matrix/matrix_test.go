// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestEnumerate_Cardinality(t *testing.T) {
	tests := []struct {
		name string
		dims Dimensions
		want int
	}{
		{"default matrix", DefaultDimensions(), 36},
		{"single point", Dimensions{
			Linkers:  []Linker{LinkerRustLld},
			Caches:   []Cache{CacheSccache},
			Dynamics: []Dynamic{DynamicDefault},
			Hotpatch: []Hotpatch{HotpatchDx},
		}, 1},
		{"empty dimension", Dimensions{
			Linkers:  AllLinkers(),
			Caches:   nil,
			Dynamics: AllDynamics(),
			Hotpatch: AllHotpatch(),
		}, 0},
		{"hotpatch only", Dimensions{
			Linkers:  []Linker{LinkerDefault},
			Caches:   []Cache{CacheIncremental},
			Dynamics: []Dynamic{DynamicDefault},
			Hotpatch: AllHotpatch(),
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Enumerate(tt.dims)
			if len(got) != tt.want {
				t.Errorf("len(Enumerate()) = %d, want %d", len(got), tt.want)
			}
			if tt.dims.Size() != tt.want {
				t.Errorf("Size() = %d, want %d", tt.dims.Size(), tt.want)
			}
		})
	}
}

func TestEnumerate_DeterministicOrder(t *testing.T) {
	first := Enumerate(DefaultDimensions())
	second := Enumerate(DefaultDimensions())
	if !reflect.DeepEqual(first, second) {
		t.Fatal("Enumerate() is not deterministic across calls")
	}

	// Linker-major, hotpatch-minor.
	if first[0] != (Scenario{LinkerDefault, CacheIncremental, DynamicDefault, HotpatchNone}) {
		t.Errorf("first scenario = %+v", first[0])
	}
	if first[1] != (Scenario{LinkerDefault, CacheIncremental, DynamicDefault, HotpatchDx}) {
		t.Errorf("second scenario = %+v", first[1])
	}
	last := first[len(first)-1]
	if last != (Scenario{LinkerRustLld, CacheSccache, DynamicShareGenerics, HotpatchDx}) {
		t.Errorf("last scenario = %+v", last)
	}
}

func TestEnumerate_UniqueSlugs(t *testing.T) {
	seen := make(map[string]bool)
	for _, sc := range Enumerate(DefaultDimensions()) {
		slug := sc.Slug()
		if seen[slug] {
			t.Errorf("duplicate slug %q", slug)
		}
		seen[slug] = true
	}
}

func TestScenario_Derivations(t *testing.T) {
	sc := Scenario{LinkerRustLld, CacheSccache, DynamicLinking, HotpatchDx}

	if got, want := sc.Slug(), "rust-lld-sccache-dynamic-linking-dx-hotpatch"; got != want {
		t.Errorf("Slug() = %q, want %q", got, want)
	}
	if got, want := sc.Describe(), "linker=rust-lld, cache=sccache, dynamic=dynamic-linking, hotpatch=dx"; got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
	if !sc.HotpatchEnabled() {
		t.Error("HotpatchEnabled() = false for dx")
	}
	if sc.Seed() != sc.Seed() {
		t.Error("Seed() is not stable")
	}
	if !strings.HasPrefix(sc.ReadyMarker(), "PAYLOAD_SYSTEM_IS_READY__"+sc.Slug()+"__") {
		t.Errorf("ReadyMarker() = %q", sc.ReadyMarker())
	}

	base := Scenario{LinkerDefault, CacheIncremental, DynamicDefault, HotpatchNone}
	if got, want := base.Slug(), "default-linker-incremental-default-dynamic-no-hotpatch"; got != want {
		t.Errorf("Slug() = %q, want %q", got, want)
	}
	if base.HotpatchEnabled() {
		t.Error("HotpatchEnabled() = true for none")
	}
	if base.Seed() == sc.Seed() || base.ReadyMarker() == sc.ReadyMarker() {
		t.Error("distinct scenarios share a seed or marker")
	}
	if base.InitialPayload() == sc.InitialPayload() {
		t.Error("distinct scenarios share an initial payload")
	}
}

func TestParseDimensions(t *testing.T) {
	d, err := ParseDimensions([]string{"rust-lld"}, nil, []string{"default", "share-generics", "default"}, []string{"dx"})
	if err != nil {
		t.Fatalf("ParseDimensions() error: %v", err)
	}
	if !reflect.DeepEqual(d.Linkers, []Linker{LinkerRustLld}) {
		t.Errorf("Linkers = %v", d.Linkers)
	}
	if !reflect.DeepEqual(d.Caches, AllCaches()) {
		t.Errorf("Caches = %v, want all", d.Caches)
	}
	if !reflect.DeepEqual(d.Dynamics, []Dynamic{DynamicDefault, DynamicShareGenerics}) {
		t.Errorf("Dynamics = %v", d.Dynamics)
	}

	_, err = ParseDimensions([]string{"mold"}, nil, nil, nil)
	if !errors.Is(err, ErrInvalidDimension) {
		t.Fatalf("ParseDimensions(mold) error = %v, want ErrInvalidDimension", err)
	}
	var dimErr *InvalidDimensionError
	if !errors.As(err, &dimErr) || dimErr.Dimension != "linker" || dimErr.Value != "mold" {
		t.Errorf("error = %#v", err)
	}
}

func TestFilter(t *testing.T) {
	all := Enumerate(DefaultDimensions())

	got, err := Filter(all, nil)
	if err != nil || len(got) != len(all) {
		t.Fatalf("Filter(nil) = %d scenarios, %v", len(got), err)
	}

	got, err = Filter(all, []string{"*-dx-hotpatch"})
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if len(got) != 18 {
		t.Errorf("Filter(*-dx-hotpatch) = %d scenarios, want 18", len(got))
	}
	for _, sc := range got {
		if !sc.HotpatchEnabled() {
			t.Errorf("unexpected scenario %s", sc.Slug())
		}
	}

	got, err = Filter(all, []string{"rust-lld-sccache-*", "default-linker-incremental-default-dynamic-no-hotpatch"})
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if len(got) != 7 {
		t.Errorf("Filter(two patterns) = %d scenarios, want 7", len(got))
	}
	if got[0].Slug() != "default-linker-incremental-default-dynamic-no-hotpatch" {
		t.Errorf("Filter() must preserve enumeration order, first = %s", got[0].Slug())
	}

	if _, err := Filter(all, []string{"[unterminated"}); err == nil {
		t.Error("Filter() with invalid pattern should fail")
	}
}
