//go:build windows

package update

import "errors"

// NeedsElevation is always false on Windows; installs there are per-user.
func NeedsElevation(string) bool {
	return false
}

// ReExecWithSudo is not available on Windows.
func ReExecWithSudo() error {
	return errors.New("automatic elevation is not supported on Windows; run as Administrator")
}
