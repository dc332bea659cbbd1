// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"slices"
	"strings"
	"testing"
)

func TestScenario_Env(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
		want map[string]string
	}{
		{
			name: "defaults",
			sc:   Scenario{LinkerDefault, CacheIncremental, DynamicDefault, HotpatchNone},
			want: map[string]string{},
		},
		{
			name: "no incremental",
			sc:   Scenario{LinkerDefault, CacheNoIncremental, DynamicDefault, HotpatchNone},
			want: map[string]string{"CARGO_INCREMENTAL": "0"},
		},
		{
			name: "sccache",
			sc:   Scenario{LinkerDefault, CacheSccache, DynamicLinking, HotpatchDx},
			want: map[string]string{"RUSTC_WRAPPER": "sccache"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.sc.Env()
			if len(got) != len(tt.want) {
				t.Fatalf("Env() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Env()[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestScenario_ShareGenericsFlags(t *testing.T) {
	sc := Scenario{LinkerDefault, CacheIncremental, DynamicShareGenerics, HotpatchNone}
	env := sc.Env()
	if !strings.Contains(env["RUSTFLAGS"], "-Zshare-generics=y") {
		t.Errorf("RUSTFLAGS = %q, want share-generics flag", env["RUSTFLAGS"])
	}
}

func TestScenario_RustLld(t *testing.T) {
	sc := Scenario{LinkerRustLld, CacheIncremental, DynamicDefault, HotpatchNone}

	if got := sc.linkerProgram("windows"); got != "rust-lld.exe" {
		t.Errorf("linkerProgram(windows) = %q", got)
	}
	if got := sc.linkerProgram("linux"); got != "" {
		t.Errorf("linkerProgram(linux) = %q, want empty", got)
	}
	if got := sc.rustFlags("windows"); len(got) != 0 {
		t.Errorf("rustFlags(windows) = %v, want none", got)
	}
	if got := sc.rustFlags("linux"); !slices.Contains(got, "-Zlinker-features=+lld") {
		t.Errorf("rustFlags(linux) = %v, want lld linker feature", got)
	}
}

func TestScenario_BevyFeatures(t *testing.T) {
	sc := Scenario{LinkerDefault, CacheIncremental, DynamicLinking, HotpatchDx}
	want := []string{FeatureDynamicLinking, FeatureHotpatching}
	if got := sc.BevyFeatures(); !slices.Equal(got, want) {
		t.Errorf("BevyFeatures() = %v, want %v", got, want)
	}
	if got := (Scenario{LinkerDefault, CacheIncremental, DynamicShareGenerics, HotpatchNone}).BevyFeatures(); len(got) != 0 {
		t.Errorf("BevyFeatures() = %v, want none", got)
	}
}

func TestRequiredTools(t *testing.T) {
	got := RequiredTools(Enumerate(DefaultDimensions()))
	want := []string{"dx", "sccache"}
	if !slices.Equal(got, want) {
		t.Errorf("RequiredTools() = %v, want %v", got, want)
	}
	if got := RequiredTools(nil); len(got) != 0 {
		t.Errorf("RequiredTools(nil) = %v", got)
	}
}

func TestScenario_TargetDir(t *testing.T) {
	sc := Scenario{LinkerDefault, CacheIncremental, DynamicDefault, HotpatchNone}
	if got, want := sc.TargetDir(), "target/"+sc.Slug(); got != want {
		t.Errorf("TargetDir() = %q, want %q", got, want)
	}
}
