// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

import "fmt"

// Set via ldflags during build.
var (
	Version = "dev"
	Commit  = "none"
)

// Summary returns "tether <version> (<commit>)".
func Summary() string {
	return fmt.Sprintf("tether %s (%s)", Version, Commit)
}
