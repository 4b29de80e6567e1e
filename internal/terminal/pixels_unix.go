//go:build unix

package terminal

import "golang.org/x/sys/unix"

// PixelSize reports the window size in pixels from TIOCGWINSZ. Many
// emulators leave these fields zero, in which case ok is false.
func (h *Host) PixelSize() (width, height int, ok bool) {
	ws, err := unix.IoctlGetWinsize(int(h.out.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Xpixel == 0 || ws.Ypixel == 0 {
		return 0, 0, false
	}

	return int(ws.Xpixel), int(ws.Ypixel), true
}
