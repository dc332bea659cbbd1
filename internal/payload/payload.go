// SPDX-License-Identifier: MPL-2.0

// Package payload rewrites the generated payload constant to simulate an
// incremental code change, and renders the payload program itself.
package payload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

const (
	// SourceFile is the payload source path relative to the workspace root.
	SourceFile = "src/main.rs"

	// MarkerKey prefixes the line the payload program prints for its value.
	MarkerKey = "PAYLOAD_RANDOM_VALUE"

	flipMask uint64 = 0xa076_1d64_78bd_642f
	bump     uint64 = 0x9e37
)

// ErrPayloadNotFound is the sentinel wrapped by NotFoundError.
var ErrPayloadNotFound = errors.New("payload constant not found")

// constPattern matches the single payload constant declaration. Groups:
// 1 = everything up to the value, 2 = the value, 3 = the terminator.
var constPattern = regexp.MustCompile(`(const\s+PAYLOAD_RANDOM_VALUE\s*:\s*u64\s*=\s*)(\d+)(\s*;)`)

type (
	// Value is a payload value.
	Value uint64

	// NotFoundError reports that the payload constant is absent from the
	// source file, which means the template has drifted from the generator.
	NotFoundError struct {
		Path string
	}

	// Mutator rewrites the payload constant inside a workspace.
	Mutator struct{}
)

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("payload constant %s not found in %s", MarkerKey, e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrPayloadNotFound }

// MarkerLine returns the output line the payload program prints for v.
func MarkerLine(v Value) string {
	return fmt.Sprintf("%s=%d", MarkerKey, uint64(v))
}

// NextValue derives a new payload value that always differs from previous.
func NextValue(previous Value) Value {
	candidate := uint64(previous) ^ flipMask
	if candidate != uint64(previous) {
		return Value(candidate)
	}
	return Value(uint64(previous) + bump)
}

// NewMutator creates a Mutator.
func NewMutator() *Mutator {
	return &Mutator{}
}

// Current returns the payload value currently declared in the workspace
// rooted at root.
func (m *Mutator) Current(root string) (Value, error) {
	path := filepath.Join(root, SourceFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read payload source: %w", err)
	}
	return parseCurrent(data, path)
}

// Mutate replaces the payload constant in the workspace rooted at root with
// NextValue of its current value and writes the file back. Only the digits
// of the declaration change.
func (m *Mutator) Mutate(root string) (Value, error) {
	path := filepath.Join(root, SourceFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &NotFoundError{Path: path}
		}
		return 0, fmt.Errorf("read payload source: %w", err)
	}

	current, err := parseCurrent(data, path)
	if err != nil {
		return 0, err
	}
	next := NextValue(current)

	loc := constPattern.FindSubmatchIndex(data)
	// loc[4]:loc[5] spans the digits.
	out := make([]byte, 0, len(data)+8)
	out = append(out, data[:loc[4]]...)
	out = strconv.AppendUint(out, uint64(next), 10)
	out = append(out, data[loc[5]:]...)

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat payload source: %w", err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("write payload source: %w", err)
	}
	return next, nil
}

func parseCurrent(data []byte, path string) (Value, error) {
	matches := constPattern.FindAllSubmatch(data, -1)
	if len(matches) != 1 {
		return 0, &NotFoundError{Path: path}
	}
	v, err := strconv.ParseUint(string(matches[0][2]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: payload value %q: %w", path, matches[0][2], err)
	}
	return Value(v), nil
}
