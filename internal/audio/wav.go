package audio

import (
	"bytes"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes PCM16 data as a WAV file.
func WriteWAV(file *os.File, pcm []byte, format Format) error {
	samples, err := BytesToSamples(pcm)
	if err != nil {
		return err
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, format.SampleRate, 16, format.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteTempWAV writes pcm to a new temporary WAV file and returns its path.
// The caller removes the file.
func WriteTempWAV(pcm []byte, format Format) (string, error) {
	file, err := os.CreateTemp("", "voicekey_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer file.Close()

	if err := WriteWAV(file, pcm, format); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// DecodeWAV reads a 16-bit WAV file into PCM16 bytes plus its native format.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, Format{}, fmt.Errorf("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	format := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	return SamplesToBytes(samples), format, nil
}

// Convert reshapes PCM16 audio from one format to another (mono mixdown,
// linear resampling, channel duplication).
func Convert(pcm []byte, from, to Format) ([]byte, error) {
	if from == to {
		return pcm, nil
	}
	samples, err := BytesToSamples(pcm)
	if err != nil {
		return nil, err
	}
	mono := Downmix(samples, from.Channels)
	mono = Resample(mono, from.SampleRate, to.SampleRate)
	if to.Channels <= 1 {
		return SamplesToBytes(mono), nil
	}
	out := make([]int16, 0, len(mono)*to.Channels)
	for _, s := range mono {
		for c := 0; c < to.Channels; c++ {
			out = append(out, s)
		}
	}
	return SamplesToBytes(out), nil
}
