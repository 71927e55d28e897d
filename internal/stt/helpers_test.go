package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1}

// toneSource replays pcm as a capture. With realtime set the capture runs at
// speaking pace and only ends early when the stream is released.
type toneSource struct {
	pcm      []byte
	realtime bool
	err      error
	opened   atomic.Int32
}

func (s *toneSource) Open(ctx context.Context, format audio.Format) (audio.Capture, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.opened.Add(1)
	return audio.NewPCMCapture(ctx, s.pcm, format, 20, s.realtime), nil
}

// speechPCM returns ms of loud square wave, well above the VAD threshold.
func speechPCM(ms int) []byte {
	samples := testFormat.SampleRate * ms / 1000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(3000)
		if (i/20)%2 == 1 {
			v = -3000
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func silencePCM(ms int) []byte {
	return make([]byte, testFormat.SampleRate*ms/1000*2)
}

func testVAD() *audio.VADConfig {
	cfg := audio.DefaultVADConfig()
	cfg.FrameSize = 320
	return cfg
}

var errOpen = errors.New("no microphone")
