package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"
)

// FileSource replays a WAV (or raw PCM16) file as if it were being captured.
// Useful for headless runs and for exercising backends without a microphone.
type FileSource struct {
	Path     string
	FrameMS  int
	Realtime bool // pace frames at capture speed
}

// NewFileSource creates a file-backed source
func NewFileSource(path string, frameMS int) *FileSource {
	return &FileSource{Path: path, FrameMS: frameMS, Realtime: true}
}

// Open loads the file and starts replaying it in the requested format.
func (s *FileSource) Open(ctx context.Context, format Format) (Capture, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	pcm := data
	if bytes.HasPrefix(data, []byte("RIFF")) {
		decoded, native, err := DecodeWAV(data)
		if err != nil {
			return nil, err
		}
		if pcm, err = Convert(decoded, native, format); err != nil {
			return nil, err
		}
	}
	return NewPCMCapture(ctx, pcm, format, s.FrameMS, s.Realtime), nil
}

// NewPCMCapture replays an in-memory PCM16 buffer in frameMS frames.
func NewPCMCapture(ctx context.Context, pcm []byte, format Format, frameMS int, realtime bool) Capture {
	if frameMS <= 0 {
		frameMS = 20
	}
	frameSize := format.FrameBytes(frameMS)
	if frameSize <= 0 {
		frameSize = len(pcm)
	}
	c := newFrameCapture(8, nil)

	go func() {
		defer close(c.frames)

		var tick <-chan time.Time
		if realtime {
			ticker := time.NewTicker(time.Duration(frameMS) * time.Millisecond)
			defer ticker.Stop()
			tick = ticker.C
		}

		for off := 0; off < len(pcm); off += frameSize {
			end := off + frameSize
			if end > len(pcm) {
				end = len(pcm)
			}
			if tick != nil {
				select {
				case <-tick:
				case <-c.stop:
					return
				case <-ctx.Done():
					return
				}
			}
			if !c.send(ctx, pcm[off:end]) {
				return
			}
		}
	}()

	return c
}
