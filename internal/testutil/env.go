// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

// SetConfigDir points os.UserConfigDir at a directory derived from dir and
// returns that directory. The original environment is restored when the
// test finishes.
//
// Platform handling:
//   - Windows: sets APPDATA, returns dir
//   - macOS: sets HOME, returns dir/Library/Application Support
//   - others: sets XDG_CONFIG_HOME, returns dir
func SetConfigDir(t testing.TB, dir string) string {
	t.Helper()

	switch runtime.GOOS {
	case "windows":
		t.Cleanup(MustSetenv(t, "APPDATA", dir))
		return dir
	case "darwin":
		t.Cleanup(MustSetenv(t, "HOME", dir))
		return filepath.Join(dir, "Library", "Application Support")
	default:
		t.Cleanup(MustSetenv(t, "XDG_CONFIG_HOME", dir))
		return dir
	}
}
