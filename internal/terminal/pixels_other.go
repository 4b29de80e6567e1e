//go:build !unix

package terminal

// PixelSize is not available here.
func (h *Host) PixelSize() (width, height int, ok bool) {
	return 0, 0, false
}
