// Package testutil provides testing utilities for the tether CLI.
package testutil

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Refresh goldens with: go test ./... -update
var update = flag.Bool("update", false, "update golden files")

// AssertGolden compares got with testdata/<goldenFile>. Line endings and
// trailing blanks are ignored on both sides: padded status and table
// output varies there between terminals.
func AssertGolden(t *testing.T, got, goldenFile string) {
	t.Helper()

	path := filepath.Join("testdata", goldenFile)

	if *update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create testdata directory: %v", err)
		}

		if err := os.WriteFile(path, []byte(got), 0o644); err != nil { //nolint:gosec // test fixture
			t.Fatalf("update golden file %s: %v", path, err)
		}

		t.Logf("updated golden file: %s", path)

		return
	}

	want, err := os.ReadFile(path) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("read golden file %s: %v (run with -update to create it)", path, err)
	}

	if msg := diffGolden(got, string(want)); msg != "" {
		t.Errorf("output mismatch for %s: %s\n\ngot:\n%s\n\nwant:\n%s\n\nrun with -update to refresh golden files",
			path, msg, got, want)
	}
}

// diffGolden returns "" when got and want match after normalization, and
// otherwise names the first differing line.
func diffGolden(got, want string) string {
	g, w := normalize(got), normalize(want)

	for i := 0; i < len(g) || i < len(w); i++ {
		switch {
		case i >= len(g):
			return fmt.Sprintf("got is missing line %d", i+1)
		case i >= len(w):
			return fmt.Sprintf("got has extra line %d", i+1)
		case g[i] != w[i]:
			return fmt.Sprintf("line %d differs", i+1)
		}
	}

	return ""
}

func normalize(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimRight(s, " \t\n")

	if s == "" {
		return nil
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return lines
}
