package terminal

import (
	"sync"
	"time"
)

// ResizePollInterval is how often a Watcher re-reads the size between
// signals. Some multiplexers drop SIGWINCH.
const ResizePollInterval = 250 * time.Millisecond

// SizeFunc reports the current window size.
type SizeFunc func() (cols, rows int, ok bool)

// Watcher reports window size changes. Every resize signal is reported;
// polls are reported only when the size differs from the last one seen.
type Watcher struct {
	size     SizeFunc
	interval time.Duration
}

// NewWatcher returns a watcher reading sizes from size. A zero interval
// means ResizePollInterval; a negative one disables polling.
func NewWatcher(size SizeFunc, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = ResizePollInterval
	}

	return &Watcher{size: size, interval: interval}
}

// Watch calls fn on every window change until stop is called. fn runs on
// the watcher goroutine. stop waits for the goroutine to exit.
func (w *Watcher) Watch(fn func()) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		w.loop(fn, done)
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

func (w *Watcher) loop(fn func(), done <-chan struct{}) {
	sigCh, release := notifyResize()
	defer release()

	var tick <-chan time.Time

	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		tick = ticker.C
	}

	lastCols, lastRows, _ := w.size()

	for {
		select {
		case <-done:
			return
		case <-sigCh:
			lastCols, lastRows, _ = w.size()
			fn()
		case <-tick:
			cols, rows, _ := w.size()
			if cols == lastCols && rows == lastRows {
				continue
			}

			lastCols, lastRows = cols, rows
			fn()
		}
	}
}
