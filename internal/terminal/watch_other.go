//go:build !unix

package terminal

import "os"

// notifyResize has no signal source here; the watcher relies on polling.
func notifyResize() (<-chan os.Signal, func()) {
	return nil, func() {}
}
