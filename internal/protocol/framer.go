package protocol

import "bytes"

// MaxLineLength bounds a buffered partial line. A peer that never sends a
// newline cannot grow the buffer past this.
const MaxLineLength = 256

// LineFramer splits a byte stream into newline-terminated lines. Data after the
// last newline is held until the next Feed.
type LineFramer struct {
	buf       []byte
	discard   bool
	overflows int
}

// Feed appends p to the stream and returns every complete line, without the
// trailing newline. An over-long line is dropped up to and including its
// terminating newline and counted in Overflows.
func (f *LineFramer) Feed(p []byte) []string {
	var lines []string
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			f.appendPartial(p)
			return lines
		}
		if f.discard {
			f.discard = false
		} else if len(f.buf)+i > MaxLineLength {
			f.overflows++
		} else {
			f.buf = append(f.buf, p[:i]...)
			lines = append(lines, string(f.buf))
		}
		f.buf = f.buf[:0]
		p = p[i+1:]
	}
	return lines
}

func (f *LineFramer) appendPartial(p []byte) {
	if f.discard {
		return
	}
	if len(f.buf)+len(p) > MaxLineLength {
		f.buf = f.buf[:0]
		f.discard = true
		f.overflows++
		return
	}
	f.buf = append(f.buf, p...)
}

// Pending returns the number of buffered bytes of an incomplete line.
func (f *LineFramer) Pending() int { return len(f.buf) }

// Overflows returns how many over-long lines have been dropped.
func (f *LineFramer) Overflows() int { return f.overflows }

// Reset discards any buffered partial line.
func (f *LineFramer) Reset() {
	f.buf = f.buf[:0]
	f.discard = false
}
