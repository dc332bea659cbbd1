// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// MustChdir switches the working directory to dir and returns a func that
// switches back. Tests calling it must not run in parallel.
func MustChdir(t testing.TB, dir string) func() {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	return func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("chdir back to %s: %v", prev, err)
		}
	}
}

// MustSetenv sets key and returns a func restoring its previous state.
func MustSetenv(t testing.TB, key, value string) func() {
	t.Helper()
	restore := snapshotEnv(t, key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s: %v", key, err)
	}
	return restore
}

// MustUnsetenv removes key and returns a func restoring its previous state.
func MustUnsetenv(t testing.TB, key string) func() {
	t.Helper()
	restore := snapshotEnv(t, key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unsetenv %s: %v", key, err)
	}
	return restore
}

func snapshotEnv(t testing.TB, key string) func() {
	prev, had := os.LookupEnv(key)
	return func() {
		err := os.Unsetenv(key)
		if had {
			err = os.Setenv(key, prev)
		}
		if err != nil {
			t.Errorf("restore env %s: %v", key, err)
		}
	}
}

func MustMkdirAll(t testing.TB, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(path, perm); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

// MustWriteFile writes content to path (mode 0644), creating missing parent
// directories so template trees can be laid out file by file.
func MustWriteFile(t testing.TB, path, content string) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func MustClose(t testing.TB, c io.Closer) {
	t.Helper()
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
