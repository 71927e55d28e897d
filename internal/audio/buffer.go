package audio

import (
	"sync"
)

// RingBuffer is a fixed-capacity, thread-safe byte ring sitting between a
// realtime capture callback and the goroutine that drains it. Writes never
// block: bytes that do not fit are dropped and counted.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	head    int // next byte to read
	size    int // bytes currently stored
	dropped int64
}

// NewRingBuffer creates a ring buffer holding at most capacity bytes
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write copies as much of data as fits and returns the number of bytes stored.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	free := len(rb.buf) - rb.size
	n := len(data)
	if n > free {
		rb.dropped += int64(n - free)
		n = free
	}
	tail := (rb.head + rb.size) % len(rb.buf)
	first := copy(rb.buf[tail:], data[:n])
	copy(rb.buf, data[first:n])
	rb.size += n
	return n
}

// Read drains up to len(data) bytes and returns the number read
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.readLocked(data)
}

func (rb *RingBuffer) readLocked(data []byte) int {
	n := len(data)
	if n > rb.size {
		n = rb.size
	}
	first := copy(data[:n], rb.buf[rb.head:])
	copy(data[first:n], rb.buf)
	rb.head = (rb.head + n) % len(rb.buf)
	rb.size -= n
	return n
}

// ReadFrame returns exactly frameSize bytes, or nil when fewer are buffered.
func (rb *RingBuffer) ReadFrame(frameSize int) []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if frameSize <= 0 || rb.size < frameSize {
		return nil
	}
	frame := make([]byte, frameSize)
	rb.readLocked(frame)
	return frame
}

// Drain returns everything currently buffered.
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil
	}
	out := make([]byte, rb.size)
	rb.readLocked(out)
	return out
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Space returns the number of bytes that can be written without dropping
func (rb *RingBuffer) Space() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buf) - rb.size
}

// Dropped returns the total number of bytes rejected because the buffer was full
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Clear discards buffered data; the dropped counter is kept.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.size = 0
}
