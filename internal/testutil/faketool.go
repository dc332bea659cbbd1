// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// WriteFakeTool writes an executable /bin/sh script named name into dir and
// returns its path. Tests using fake tools are skipped on Windows.
func WriteFakeTool(t testing.TB, dir, name, script string) string {
	t.Helper()
	SkipOnWindows(t)

	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("failed to write fake tool %s: %v", name, err)
	}
	return path
}

// PrependPath puts dir first on PATH for the rest of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()
	t.Cleanup(MustSetenv(t, "PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH")))
}

// SkipOnWindows skips tests that rely on a POSIX shell and signals.
func SkipOnWindows(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping: requires /bin/sh and POSIX signals")
	}
}

// FakeBuildScript is a build tool stand-in. It counts its invocations in
// the working directory and fails the one whose ordinal equals
// FAKE_BUILD_FAIL.
const FakeBuildScript = `n=$(cat .fake-build-count 2>/dev/null || echo 0)
n=$((n + 1))
echo "$n" > .fake-build-count
echo "   Compiling bench-payload (build $n)"
if [ "$FAKE_BUILD_FAIL" = "$n" ]; then
  echo "error: could not compile" >&2
  exit 101
fi
echo "    Finished dev profile"`

// FakeServeScript is a hot-patch serve stand-in: it prints the ready marker
// found in src/main.rs, then reports the payload constant every time it
// changes, the way the generated program does after a hot patch.
const FakeServeScript = `marker=$(sed -n 's/^const READY_MARKER: &str = "\(.*\)";/\1/p' src/main.rs)
echo "serving"
echo "$marker"
last=""
while true; do
  v=$(sed -n 's/^const PAYLOAD_RANDOM_VALUE: u64 = \([0-9]*\);/\1/p' src/main.rs)
  if [ "$v" != "$last" ]; then
    echo "PAYLOAD_RANDOM_VALUE=$v"
    last=$v
  fi
  sleep 0.05
done`
