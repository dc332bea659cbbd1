// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/invowk/buildbench/internal/matrix"
	"github.com/invowk/buildbench/internal/payload"
	"github.com/invowk/buildbench/internal/testutil"
)

var dxScenario = matrix.Scenario{
	Linker:   matrix.LinkerDefault,
	Cache:    matrix.CacheSccache,
	Dynamic:  matrix.DynamicLinking,
	Hotpatch: matrix.HotpatchDx,
}

func newTemplate(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.MustMkdirAll(t, filepath.Join(dir, "assets"), 0o755)
	testutil.MustMkdirAll(t, filepath.Join(dir, "target", "debug"), 0o755)
	testutil.MustMkdirAll(t, filepath.Join(dir, ".git"), 0o755)
	testutil.MustWriteFile(t, filepath.Join(dir, "assets", "icon.txt"), "icon")
	testutil.MustWriteFile(t, filepath.Join(dir, "target", "debug", "stale.bin"), "stale")
	testutil.MustWriteFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/main")
	if manifest != "" {
		testutil.MustWriteFile(t, filepath.Join(dir, "Cargo.toml"), manifest)
	}
	return dir
}

func decodeTOML(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	doc := make(map[string]any)
	if err := toml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return doc
}

func TestManager_Create(t *testing.T) {
	base := t.TempDir()
	tmpl := newTemplate(t, `[package]
name = "template"
version = "0.3.0"
edition = "2024"

[dependencies]
bevy = { version = "0.17.2", default-features = false, features = ["bevy_ui"] }
`)
	m := NewManager(Options{TemplateDir: tmpl, BaseDir: base})

	ws, err := m.Create(dxScenario)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	t.Cleanup(func() { _ = m.Destroy(ws) })

	if !ws.Alive() {
		t.Error("new workspace not alive")
	}
	if filepath.Dir(ws.Root) != base {
		t.Errorf("workspace %s not under base %s", ws.Root, base)
	}
	if !strings.HasPrefix(filepath.Base(ws.Root), "bench-"+dxScenario.Slug()+"-") {
		t.Errorf("workspace name %q lacks slug prefix", filepath.Base(ws.Root))
	}

	if _, err := os.Stat(ws.Path("assets", "icon.txt")); err != nil {
		t.Errorf("template file not copied: %v", err)
	}
	for _, ignored := range []string{"target", ".git"} {
		if _, err := os.Stat(ws.Path(ignored)); !os.IsNotExist(err) {
			t.Errorf("%s copied despite ignore pattern", ignored)
		}
	}

	manifest := decodeTOML(t, ws.Path("Cargo.toml"))
	pkg := manifest["package"].(map[string]any)
	if got, want := pkg["name"], "bench-payload-"+dxScenario.Slug(); got != want {
		t.Errorf("package name = %v, want %v", got, want)
	}
	if pkg["version"] != "0.3.0" {
		t.Errorf("package version = %v, want template value kept", pkg["version"])
	}
	bevy := manifest["dependencies"].(map[string]any)["bevy"].(map[string]any)
	if bevy["default-features"] != false {
		t.Error("bevy default-features not preserved")
	}
	var features []string
	for _, f := range bevy["features"].([]any) {
		features = append(features, f.(string))
	}
	want := []string{"bevy_ui", matrix.FeatureDynamicLinking, matrix.FeatureHotpatching}
	if !slices.Equal(features, want) {
		t.Errorf("bevy features = %v, want %v", features, want)
	}

	cfg := decodeTOML(t, ws.Path(".cargo", "config.toml"))
	if got := cfg["build"].(map[string]any)["target-dir"]; got != dxScenario.TargetDir() {
		t.Errorf("target-dir = %v, want %v", got, dxScenario.TargetDir())
	}
	if got := cfg["env"].(map[string]any)["RUSTC_WRAPPER"]; got != "sccache" {
		t.Errorf("env RUSTC_WRAPPER = %v, want sccache", got)
	}

	toolchain := decodeTOML(t, ws.Path("rust-toolchain.toml"))
	if got := toolchain["toolchain"].(map[string]any)["channel"]; got != "nightly" {
		t.Errorf("toolchain channel = %v", got)
	}

	src, err := os.ReadFile(ws.Path(filepath.FromSlash(payload.SourceFile)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(src), dxScenario.ReadyMarker()) {
		t.Error("payload source lacks ready marker")
	}
	v, err := payload.NewMutator().Current(ws.Root)
	if err != nil {
		t.Fatalf("Current() error: %v", err)
	}
	if uint64(v) != dxScenario.InitialPayload() {
		t.Errorf("payload = %d, want %d", v, dxScenario.InitialPayload())
	}
}

func TestManager_Create_GeneratesManifest(t *testing.T) {
	m := NewManager(Options{TemplateDir: newTemplate(t, ""), BaseDir: t.TempDir()})
	sc := matrix.Scenario{
		Linker:   matrix.LinkerRustLld,
		Cache:    matrix.CacheIncremental,
		Dynamic:  matrix.DynamicDefault,
		Hotpatch: matrix.HotpatchNone,
	}

	ws, err := m.Create(sc)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	t.Cleanup(func() { _ = m.Destroy(ws) })

	manifest := decodeTOML(t, ws.Path("Cargo.toml"))
	bevy := manifest["dependencies"].(map[string]any)["bevy"].(map[string]any)
	if bevy["version"] != BevyVersion {
		t.Errorf("bevy version = %v, want %v", bevy["version"], BevyVersion)
	}
	if _, ok := manifest["profile"]; !ok {
		t.Error("generated manifest lacks dev profile")
	}
}

func TestManager_Create_UniqueRoots(t *testing.T) {
	m := NewManager(Options{TemplateDir: newTemplate(t, ""), BaseDir: t.TempDir()})

	a, err := m.Create(dxScenario)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create(dxScenario)
	if err != nil {
		t.Fatal(err)
	}
	if a.Root == b.Root {
		t.Errorf("two workspaces share root %s", a.Root)
	}
	_ = m.Destroy(a)
	_ = m.Destroy(b)
}

func TestManager_Create_Failure(t *testing.T) {
	base := t.TempDir()
	m := NewManager(Options{TemplateDir: newTemplate(t, "this is [not toml"), BaseDir: base})

	ws, err := m.Create(dxScenario)
	if err == nil {
		_ = m.Destroy(ws)
		t.Fatal("Create() succeeded with a broken manifest")
	}
	if !errors.Is(err, ErrWorkspaceCreation) {
		t.Errorf("error %v does not match ErrWorkspaceCreation", err)
	}
	var ce *CreationError
	if !errors.As(err, &ce) || ce.Slug != dxScenario.Slug() {
		t.Errorf("error %v is not a CreationError for %s", err, dxScenario.Slug())
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("partial workspace left behind: %v", entries)
	}
}

func TestManager_Destroy_Idempotent(t *testing.T) {
	m := NewManager(Options{TemplateDir: newTemplate(t, ""), BaseDir: t.TempDir()})
	ws, err := m.Create(dxScenario)
	if err != nil {
		t.Fatal(err)
	}

	for i := range 2 {
		if err := m.Destroy(ws); err != nil {
			t.Fatalf("Destroy() #%d error: %v", i+1, err)
		}
	}
	if ws.Alive() {
		t.Error("destroyed workspace still alive")
	}
	if _, err := os.Stat(ws.Root); !os.IsNotExist(err) {
		t.Errorf("workspace root still exists: %v", err)
	}
	if err := m.Destroy(nil); err != nil {
		t.Errorf("Destroy(nil) error: %v", err)
	}
}

func TestManager_With(t *testing.T) {
	m := NewManager(Options{TemplateDir: newTemplate(t, ""), BaseDir: t.TempDir()})
	sentinel := errors.New("phase failed")

	t.Run("error", func(t *testing.T) {
		var root string
		err := m.With(dxScenario, func(ws *Workspace) error {
			root = ws.Root
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("With() error = %v, want sentinel", err)
		}
		if _, statErr := os.Stat(root); !os.IsNotExist(statErr) {
			t.Error("workspace not destroyed after error")
		}
	})

	t.Run("panic", func(t *testing.T) {
		var root string
		func() {
			defer func() { _ = recover() }()
			_ = m.With(dxScenario, func(ws *Workspace) error {
				root = ws.Root
				panic("boom")
			})
		}()
		if root == "" {
			t.Fatal("fn never ran")
		}
		if _, statErr := os.Stat(root); !os.IsNotExist(statErr) {
			t.Error("workspace not destroyed after panic")
		}
	})
}

func TestManager_Prepare(t *testing.T) {
	tmpl := newTemplate(t, "")

	t.Run("creates base", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "work")
		if err := NewManager(Options{TemplateDir: tmpl, BaseDir: base}).Prepare(); err != nil {
			t.Fatalf("Prepare() error: %v", err)
		}
		if info, err := os.Stat(base); err != nil || !info.IsDir() {
			t.Errorf("base dir not created: %v", err)
		}
	})

	t.Run("missing template", func(t *testing.T) {
		m := NewManager(Options{TemplateDir: filepath.Join(t.TempDir(), "nope"), BaseDir: t.TempDir()})
		if err := m.Prepare(); !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("Prepare() error = %v, want ErrTemplateNotFound", err)
		}
	})

	t.Run("base is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		testutil.MustWriteFile(t, file, "x")
		m := NewManager(Options{TemplateDir: tmpl, BaseDir: file})
		if err := m.Prepare(); !errors.Is(err, ErrBaseDir) {
			t.Errorf("Prepare() error = %v, want ErrBaseDir", err)
		}
	})
}

func TestIsIgnored(t *testing.T) {
	tests := []struct {
		rel  string
		dir  bool
		want bool
	}{
		{"target", true, true},
		{"target/debug/app", false, true},
		{".git", true, true},
		{"src/main.rs", false, false},
		{"assets/target.png", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := isIgnored(DefaultIgnore, tt.rel, tt.dir); got != tt.want {
				t.Errorf("isIgnored(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}
