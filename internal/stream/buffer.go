package stream

import (
	"sync"
	"time"
)

// DefaultMaxLines bounds the buffer when no size is configured
const DefaultMaxLines = 2000

// Line is one line of container output
type Line struct {
	Text     string
	Received time.Time
}

// Buffer holds the most recent lines of a stream. When full, the oldest lines
// are evicted.
type Buffer struct {
	mu      sync.RWMutex
	max     int
	lines   []Line
	evicted int
}

// NewBuffer creates a buffer keeping at most max lines
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Buffer{
		max:   max,
		lines: make([]Line, 0, min(max, 256)),
	}
}

// Add appends a line, dropping the oldest one when over capacity
func (b *Buffer) Add(line Line) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = b.lines[over:]
		b.evicted += over
	}
}

// Lines returns a copy of the buffered lines, oldest first
func (b *Buffer) Lines() []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// Evicted returns how many lines were dropped for capacity
func (b *Buffer) Evicted() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}
