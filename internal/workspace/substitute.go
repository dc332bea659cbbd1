// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/invowk/buildbench/internal/matrix"
	"github.com/invowk/buildbench/internal/payload"
)

const (
	// BevyVersion is the bevy version written into generated manifests.
	BevyVersion = "0.17.2"

	cargoConfigFile = ".cargo/config.toml"
	manifestFile    = "Cargo.toml"
	toolchainFile   = "rust-toolchain.toml"
)

// applySubstitutions turns a fresh template copy at root into the project
// for sc.
func applySubstitutions(root string, sc matrix.Scenario) error {
	steps := []struct {
		name string
		fn   func(string, matrix.Scenario) error
	}{
		{cargoConfigFile, writeCargoConfig},
		{manifestFile, writeManifest},
		{toolchainFile, writeToolchain},
		{payload.SourceFile, writePayloadSource},
	}
	for _, step := range steps {
		if err := step.fn(root, sc); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// writeCargoConfig overlays the scenario's cargo settings onto the
// template's .cargo/config.toml, if any.
func writeCargoConfig(root string, sc matrix.Scenario) error {
	path := filepath.Join(root, filepath.FromSlash(cargoConfigFile))
	doc, err := readTOML(path)
	if err != nil {
		return err
	}

	build := table(doc, "build")
	build["target-dir"] = sc.TargetDir()
	if flags := sc.RustFlags(); len(flags) > 0 {
		build["rustflags"] = flags
	}

	if env := sc.Env(); len(env) > 0 {
		envTable := table(doc, "env")
		for k, v := range env {
			// cargo reads RUSTFLAGS from its own environment, not [env];
			// build.rustflags above carries the same flags.
			if k == "RUSTFLAGS" {
				continue
			}
			envTable[k] = v
		}
	}

	if linker := sc.LinkerProgram(); linker != "" {
		target := table(table(doc, "target"), "cfg(all())")
		target["linker"] = linker
	}

	return writeTOML(path, doc)
}

// writeManifest patches the template manifest, or generates one when the
// template has none.
func writeManifest(root string, sc matrix.Scenario) error {
	path := filepath.Join(root, manifestFile)
	doc, err := readTOML(path)
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		doc = defaultManifest()
	}

	pkg := table(doc, "package")
	pkg["name"] = "bench-payload-" + sc.Slug()
	if _, ok := pkg["version"]; !ok {
		pkg["version"] = "0.1.0"
	}
	if _, ok := pkg["edition"]; !ok {
		pkg["edition"] = "2024"
	}

	deps := table(doc, "dependencies")
	bevy, err := bevyDependency(deps["bevy"])
	if err != nil {
		return err
	}
	bevy["features"] = mergeFeatures(bevy["features"], sc.BevyFeatures())
	deps["bevy"] = bevy

	return writeTOML(path, doc)
}

// writeToolchain pins the nightly toolchain unless the template already
// pins one.
func writeToolchain(root string, _ matrix.Scenario) error {
	path := filepath.Join(root, toolchainFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	doc := map[string]any{
		"toolchain": map[string]any{
			"channel":    "nightly",
			"components": []string{"llvm-tools-preview"},
		},
	}
	return writeTOML(path, doc)
}

func writePayloadSource(root string, sc matrix.Scenario) error {
	path := filepath.Join(root, filepath.FromSlash(payload.SourceFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	src := payload.Source(sc.ReadyMarker(), payload.Value(sc.InitialPayload()))
	return os.WriteFile(path, []byte(src), 0o644)
}

func defaultManifest() map[string]any {
	return map[string]any{
		"package": map[string]any{
			"version": "0.1.0",
			"edition": "2024",
		},
		"dependencies": map[string]any{
			"bevy": map[string]any{"version": BevyVersion},
		},
		"profile": map[string]any{
			"dev": map[string]any{
				"opt-level": 1,
				"package": map[string]any{
					"*": map[string]any{"opt-level": 3},
				},
			},
		},
	}
}

// bevyDependency normalizes the bevy dependency entry into table form.
func bevyDependency(v any) (map[string]any, error) {
	switch dep := v.(type) {
	case nil:
		return map[string]any{"version": BevyVersion}, nil
	case string:
		return map[string]any{"version": dep}, nil
	case map[string]any:
		return dep, nil
	default:
		return nil, fmt.Errorf("unsupported bevy dependency of type %T", v)
	}
}

func mergeFeatures(existing any, add []string) []string {
	var features []string
	if list, ok := existing.([]any); ok {
		for _, f := range list {
			if s, ok := f.(string); ok {
				features = append(features, s)
			}
		}
	}
	for _, f := range add {
		if !slices.Contains(features, f) {
			features = append(features, f)
		}
	}
	if features == nil {
		features = []string{}
	}
	return features
}

// table returns doc[key] as a table, creating it if absent or replacing a
// non-table value.
func table(doc map[string]any, key string) map[string]any {
	if t, ok := doc[key].(map[string]any); ok {
		return t
	}
	t := make(map[string]any)
	doc[key] = t
	return t
}

func readTOML(path string) (map[string]any, error) {
	doc := make(map[string]any)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

func writeTOML(path string, doc map[string]any) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
