// SPDX-License-Identifier: MPL-2.0

package process

import "sync"

// maxBufferedLines bounds the lines retained per process. When exceeded the
// oldest half is discarded; a cursor pointing into the discarded range
// resumes at the oldest retained line.
const maxBufferedLines = 20_000

// lineBuffer is an append-only line log with broadcast notification.
// Waiters take the current notify channel and block on it; every append or
// close replaces it after closing the old one.
type lineBuffer struct {
	mu     sync.Mutex
	lines  []string
	base   int
	closed bool
	notify chan struct{}
}

func newLineBuffer() *lineBuffer {
	return &lineBuffer{notify: make(chan struct{})}
}

func (b *lineBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	if len(b.lines) > maxBufferedLines {
		drop := len(b.lines) / 2
		b.lines = append(b.lines[:0:0], b.lines[drop:]...)
		b.base += drop
	}
	b.broadcast()
}

func (b *lineBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.broadcast()
	}
}

func (b *lineBuffer) broadcast() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// next returns the line at *cursor and advances it. When no line is
// available it reports whether the buffer is closed and returns the
// channel to wait on for the next change.
func (b *lineBuffer) next(cursor *int) (line string, ok, closed bool, wait <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if *cursor < b.base {
		*cursor = b.base
	}
	if i := *cursor - b.base; i < len(b.lines) {
		*cursor++
		return b.lines[i], true, false, nil
	}
	return "", false, b.closed, b.notify
}

func (b *lineBuffer) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
