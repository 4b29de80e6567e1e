//go:build !windows

package update

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNeedsElevation(t *testing.T) {
	writable := t.TempDir()
	if NeedsElevation(filepath.Join(writable, "tether")) {
		t.Error("NeedsElevation() = true for a writable directory")
	}

	if os.Geteuid() == 0 {
		t.Skip("root can write anywhere")
	}

	locked := filepath.Join(t.TempDir(), "locked")
	if err := os.MkdirAll(locked, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	if !NeedsElevation(filepath.Join(locked, "tether")) {
		t.Error("NeedsElevation() = false for a read-only directory")
	}
}
