package stt

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
)

// Batch recordings are brought to a consistent level before upload; quiet
// microphones otherwise hurt recognition.
const (
	normalizePeak    int16   = 29000 // about -1 dBFS
	normalizeMaxGain float64 = 4
)

// stopCapture is the release hook shared by capture-driven backends: letting
// go of the key stops the device, and the backend finishes with what it heard.
func stopCapture(capture audio.Capture, logger zerolog.Logger) func() {
	return func() {
		if err := capture.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close audio capture")
		}
	}
}

// recordUtterance drains capture until it ends and returns the normalized
// recording. ok is false when the recording holds no speech and there is
// nothing worth transcribing.
func recordUtterance(ctx context.Context, capture audio.Capture, backend string, vad *audio.VADConfig) (pcm []byte, ok bool, err error) {
	pcm, err = audio.Record(ctx, capture)
	if err != nil {
		return nil, false, err
	}
	observability.RecordAudioBytes(backend, len(pcm))

	if vad != nil && !audio.ContainsSpeech(pcm, vad) {
		observability.GetLogger().Debug().
			Str("backend", backend).
			Int("bytes", len(pcm)).
			Msg("Recording contains no speech, skipping transcription")
		return pcm, false, nil
	}
	if len(pcm) == 0 {
		return pcm, false, nil
	}
	return audio.NormalizePCM(pcm, normalizePeak, normalizeMaxGain), true, nil
}
