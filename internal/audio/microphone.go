package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
)

// Microphone captures from the default input device through miniaudio.
type Microphone struct {
	BufferSize int // ring buffer capacity in bytes
	FrameMS    int
}

// NewMicrophone creates a microphone source
func NewMicrophone(bufferSize, frameMS int) *Microphone {
	return &Microphone{BufferSize: bufferSize, FrameMS: frameMS}
}

// Open starts the capture device. The device callback only copies into a
// ring buffer; a pump goroutine turns that into frames every FrameMS.
func (m *Microphone) Open(ctx context.Context, format Format) (Capture, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	frameMS := m.FrameMS
	if frameMS <= 0 {
		frameMS = 20
	}
	bufferSize := m.BufferSize
	if bufferSize <= 0 {
		bufferSize = format.BytesPerSecond() * 2
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	ring := NewRingBuffer(bufferSize)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			ring.Write(inputSamples)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	c := newFrameCapture(16, func() error {
		device.Uninit()
		err := mctx.Uninit()
		mctx.Free()
		return err
	})

	frameSize := format.FrameBytes(frameMS)
	go func() {
		defer close(c.frames)

		ticker := time.NewTicker(time.Duration(frameMS) * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for frame := ring.ReadFrame(frameSize); frame != nil; frame = ring.ReadFrame(frameSize) {
					if !c.send(ctx, frame) {
						c.flush(ctx, append(frame, ring.Drain()...))
						return
					}
				}
			case <-c.stop:
				c.flush(ctx, ring.Drain())
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return c, nil
}
