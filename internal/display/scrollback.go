package display

import (
	"strings"
	"unicode/utf8"

	xansi "github.com/charmbracelet/x/ansi"
)

const (
	// bytesPerCol bounds the unfinished line relative to the grid width.
	bytesPerCol = 4
	// minPartialBytes keeps narrow grids from truncating ordinary lines.
	minPartialBytes = 256
	// escapeTail is how far from the end an ESC is treated as a sequence
	// that may continue in the next chunk.
	escapeTail = 64
)

// lineRing keeps the last max completed lines of output with escape
// sequences removed. The unfinished line is held within a byte budget, so
// output without newlines (full-screen programs) cannot grow it. Not safe
// for concurrent use.
type lineRing struct {
	max     int
	lines   []string
	start   int
	count   int
	partial string
	budget  int
}

func newLineRing(maxLines, cols int) *lineRing {
	if maxLines < 0 {
		maxLines = 0
	}

	r := &lineRing{max: maxLines, lines: make([]string, maxLines)}
	r.setWidth(cols)

	return r
}

// setWidth sizes the unfinished-line budget for a grid cols wide.
func (r *lineRing) setWidth(cols int) {
	r.budget = max(cols*bytesPerCol, minPartialBytes)
	r.compact()
}

func (r *lineRing) append(text string) {
	last := strings.LastIndexByte(text, '\n')
	if last < 0 {
		r.partial += text
		r.compact()

		return
	}

	lines := strings.Split(text[:last], "\n")
	lines[0] = r.partial + lines[0]

	for _, line := range lines {
		r.push(cleanLine(line))
	}

	r.partial = text[last+1:]
	r.compact()
}

// compact trims the unfinished line to what a terminal would still show
// and to the byte budget.
func (r *lineRing) compact() {
	p := r.partial

	// A trailing \r may be the first half of \r\n; anything before an
	// earlier \r has been overwritten.
	if len(p) > 1 {
		if i := strings.LastIndexByte(p[:len(p)-1], '\r'); i >= 0 {
			p = p[i+1:]
		}
	}

	if len(p) > r.budget {
		head, tail := p, ""
		if i := strings.LastIndexByte(p, '\x1b'); i >= 0 && len(p)-i <= escapeTail {
			head, tail = p[:i], p[i:]
		}

		head = xansi.Strip(head)
		if keep := r.budget - len(tail); len(head) > keep {
			head = head[len(head)-max(keep, 0):]
			for len(head) > 0 && !utf8.RuneStart(head[0]) {
				head = head[1:]
			}
		}

		p = head + tail
	}

	r.partial = p
}

// cleanLine strips escape sequences and keeps the text after the last
// carriage return, which is what a terminal leaves visible.
func cleanLine(raw string) string {
	line := strings.TrimRight(raw, "\r")
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		line = line[i+1:]
	}

	return strings.TrimRight(xansi.Strip(line), " ")
}

func (r *lineRing) push(line string) {
	if r.max == 0 {
		return
	}

	if r.count < r.max {
		r.lines[(r.start+r.count)%r.max] = line
		r.count++

		return
	}

	r.lines[r.start] = line
	r.start = (r.start + 1) % r.max
}

func (r *lineRing) snapshot() []string {
	out := make([]string, 0, r.count+1)
	for i := range r.count {
		out = append(out, r.lines[(r.start+i)%r.max])
	}

	if tail := cleanLine(r.partial); tail != "" {
		out = append(out, tail)
	}

	return out
}

func (r *lineRing) clear() {
	clear(r.lines)
	r.start, r.count, r.partial = 0, 0, ""
}
