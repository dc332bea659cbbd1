// SPDX-License-Identifier: MPL-2.0

package payload

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, SourceFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return root
}

func TestMutate_RoundTrip(t *testing.T) {
	original := Source("READY_X", 42)
	root := writeSource(t, original)
	m := NewMutator()

	next, err := m.Mutate(root)
	if err != nil {
		t.Fatalf("Mutate() error: %v", err)
	}
	if next == 42 {
		t.Fatal("Mutate() returned the previous value")
	}
	if next != NextValue(42) {
		t.Errorf("Mutate() = %d, want %d", next, NextValue(42))
	}

	got, err := m.Current(root)
	if err != nil {
		t.Fatalf("Current() error: %v", err)
	}
	if got != next {
		t.Errorf("Current() = %d, want %d", got, next)
	}

	data, err := os.ReadFile(filepath.Join(root, SourceFile))
	if err != nil {
		t.Fatal(err)
	}
	oldLines := strings.Split(original, "\n")
	newLines := strings.Split(string(data), "\n")
	if len(oldLines) != len(newLines) {
		t.Fatalf("line count changed: %d -> %d", len(oldLines), len(newLines))
	}
	changed := 0
	for i := range oldLines {
		if oldLines[i] == newLines[i] {
			continue
		}
		changed++
		want := strings.Replace(oldLines[i], "42", MarkerLine(next)[len(MarkerKey)+1:], 1)
		if newLines[i] != want {
			t.Errorf("line %d = %q, want %q", i, newLines[i], want)
		}
	}
	if changed != 1 {
		t.Errorf("%d lines changed, want 1", changed)
	}
}

func TestMutate_Successive(t *testing.T) {
	root := writeSource(t, Source("READY", 7))
	m := NewMutator()

	prev := Value(7)
	for range 3 {
		v, err := m.Mutate(root)
		if err != nil {
			t.Fatalf("Mutate() error: %v", err)
		}
		if v == prev {
			t.Fatalf("Mutate() produced unchanged value %d", v)
		}
		prev = v
	}
}

func TestMutate_PreservesFormatting(t *testing.T) {
	src := "// header\nconst   PAYLOAD_RANDOM_VALUE :u64=  100 ;\nfn main() {}\n"
	root := writeSource(t, src)

	next, err := NewMutator().Mutate(root)
	if err != nil {
		t.Fatalf("Mutate() error: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, SourceFile))
	want := "// header\nconst   PAYLOAD_RANDOM_VALUE :u64=  " + MarkerLine(next)[len(MarkerKey)+1:] + " ;\nfn main() {}\n"
	if string(data) != want {
		t.Errorf("source = %q, want %q", data, want)
	}
}

func TestMutate_NotFound(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no constant", "fn main() { println!(\"hello world\"); }\n"},
		{"two constants", "const PAYLOAD_RANDOM_VALUE: u64 = 1;\nconst PAYLOAD_RANDOM_VALUE: u64 = 2;\n"},
		{"wrong type", "const PAYLOAD_RANDOM_VALUE: u32 = 1;\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeSource(t, tt.src)
			_, err := NewMutator().Mutate(root)
			if !errors.Is(err, ErrPayloadNotFound) {
				t.Fatalf("Mutate() error = %v, want ErrPayloadNotFound", err)
			}
			data, _ := os.ReadFile(filepath.Join(root, SourceFile))
			if string(data) != tt.src {
				t.Error("source modified despite error")
			}
		})
	}
}

func TestMutate_MissingFile(t *testing.T) {
	_, err := NewMutator().Mutate(t.TempDir())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Mutate() error = %v, want *NotFoundError", err)
	}
}

func TestNextValue(t *testing.T) {
	for _, v := range []Value{0, 1, 42, Value(flipMask), ^Value(0)} {
		if NextValue(v) == v {
			t.Errorf("NextValue(%d) == input", v)
		}
	}
}

func TestSource_ContainsMarkers(t *testing.T) {
	src := Source("PAYLOAD_SYSTEM_IS_READY__x__00", 123)
	if !strings.Contains(src, `const READY_MARKER: &str = "PAYLOAD_SYSTEM_IS_READY__x__00";`) {
		t.Error("ready marker constant missing")
	}
	if !strings.Contains(src, "const PAYLOAD_RANDOM_VALUE: u64 = 123;") {
		t.Error("payload constant missing")
	}
	if !strings.Contains(src, "if *ticks % 600 == 0") {
		t.Error("heartbeat modulo not rendered")
	}
}
