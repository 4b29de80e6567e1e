package renderer

import (
	"bytes"
	"errors"
	"sync"

	"github.com/hinshun/vt10x"
)

var errMountGone = errors.New("mount gone")

// testMount is a Mount backed by a buffer. Safe for concurrent use.
type testMount struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	cols   int
	rows   int
	hidden bool
	fail   bool
}

func newTestMount(cols, rows int) *testMount {
	return &testMount{cols: cols, rows: rows}
}

func (m *testMount) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return 0, errMountGone
	}

	return m.buf.Write(p)
}

func (m *testMount) Size() (int, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hidden {
		return 0, 0, false
	}

	return m.cols, m.rows, true
}

func (m *testMount) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.buf.String()
}

func (m *testMount) Reset() {
	m.mu.Lock()
	m.buf.Reset()
	m.mu.Unlock()
}

func (m *testMount) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

type pixelMount struct {
	testMount
	w, h int
}

func (m *pixelMount) Size() (int, int, bool) { return 0, 0, false }

func (m *pixelMount) PixelSize() (int, int, bool) {
	if m.w == 0 && m.h == 0 {
		return 0, 0, false
	}

	return m.w, m.h, true
}

// screenWith returns an emulator of the given size that has consumed input.
func screenWith(cols, rows int, input string) vt10x.Terminal {
	vt := vt10x.New(vt10x.WithSize(cols, rows))
	_, _ = vt.Write([]byte(input))

	return vt
}
