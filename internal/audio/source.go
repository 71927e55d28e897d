package audio

import (
	"context"
	"sync"
)

// Source opens capture sessions. Implementations own a device (microphone,
// file replay) and hand PCM16 frames to whichever backend opened them.
type Source interface {
	Open(ctx context.Context, format Format) (Capture, error)
}

// Capture is one live capture session.
type Capture interface {
	// Frames delivers PCM16 frames in capture order. It is closed once the
	// capture ends, either because Close was called or the input ran out.
	Frames() <-chan []byte

	// Close stops capturing and releases the device. Safe to call more than once.
	Close() error
}

// frameCapture is the channel plumbing shared by every Capture in this package.
type frameCapture struct {
	frames    chan []byte
	stop      chan struct{}
	closeOnce sync.Once
	release   func() error
	err       error
}

func newFrameCapture(buffer int, release func() error) *frameCapture {
	return &frameCapture{
		frames:  make(chan []byte, buffer),
		stop:    make(chan struct{}),
		release: release,
	}
}

func (c *frameCapture) Frames() <-chan []byte {
	return c.frames
}

func (c *frameCapture) Close() error {
	c.closeOnce.Do(func() {
		// stop the device before the pump drains what is left
		if c.release != nil {
			c.err = c.release()
		}
		close(c.stop)
	})
	return c.err
}

// send delivers a frame unless the capture was stopped or ctx ended first.
func (c *frameCapture) send(ctx context.Context, frame []byte) bool {
	select {
	case c.frames <- frame:
		return true
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// flush delivers the tail of a capture after Close; the consumer is still
// draining Frames at that point.
func (c *frameCapture) flush(ctx context.Context, frame []byte) {
	if len(frame) == 0 {
		return
	}
	select {
	case c.frames <- frame:
	case <-ctx.Done():
	}
}

// Record drains a capture until it ends and returns everything it produced.
func Record(ctx context.Context, capture Capture) ([]byte, error) {
	var pcm []byte
	for {
		select {
		case frame, ok := <-capture.Frames():
			if !ok {
				return pcm, nil
			}
			pcm = append(pcm, frame...)
		case <-ctx.Done():
			return pcm, ctx.Err()
		}
	}
}
