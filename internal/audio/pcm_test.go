package audio

import (
	"testing"
)

var testFormat = Format{SampleRate: 16000, Channels: 1}

func TestBytesToSamples_RoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	got, err := BytesToSamples(SamplesToBytes(samples))
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}
}

func TestBytesToSamples_OddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 4800) // 0.1s at 48kHz
	out := Resample(samples, 48000, 16000)

	expectedLen := 1600
	tolerance := 10
	if len(out) < expectedLen-tolerance || len(out) > expectedLen+tolerance {
		t.Errorf("Expected length around %d, got %d", expectedLen, len(out))
	}

	same := Resample(samples, 16000, 16000)
	if len(same) != len(samples) {
		t.Errorf("Expected unchanged length %d, got %d", len(samples), len(same))
	}
}

func TestDownmix(t *testing.T) {
	stereo := []int16{100, 300, -200, -400}
	mono := Downmix(stereo, 2)
	if len(mono) != 2 {
		t.Fatalf("Expected 2 mono samples, got %d", len(mono))
	}
	if mono[0] != 200 || mono[1] != -300 {
		t.Errorf("Expected [200 -300], got %v", mono)
	}
}

func TestNormalizeAudio_ScalesLoudDown(t *testing.T) {
	samples := []int16{1000, -20000, 5000}
	out := NormalizeAudio(samples, 10000, 4)
	if out[1] != -10000 {
		t.Errorf("Expected peak scaled to -10000, got %d", out[1])
	}
	if out[0] != 500 {
		t.Errorf("Expected 500, got %d", out[0])
	}
}

func TestNormalizeAudio_BoostsQuietUpToMaxGain(t *testing.T) {
	quiet := []int16{100, -500}
	out := NormalizeAudio(quiet, 10000, 4)
	if out[1] != -2000 {
		t.Errorf("Expected gain capped at 4x (-2000), got %d", out[1])
	}

	nearTarget := []int16{4000, -5000}
	if out := NormalizeAudio(nearTarget, 10000, 4); out[1] != -10000 {
		t.Errorf("Expected peak raised to -10000, got %d", out[1])
	}
}

func TestNormalizeAudio_LeavesSilenceAndNoBoost(t *testing.T) {
	silence := []int16{0, 0, 0}
	if out := NormalizeAudio(silence, 10000, 4); out[0] != 0 || out[2] != 0 {
		t.Errorf("Expected silence unchanged, got %v", out)
	}
	quiet := []int16{10, -20}
	if out := NormalizeAudio(quiet, 10000, 1); out[1] != -20 {
		t.Errorf("Expected no boost with maxGain 1, got %v", out)
	}
}

func TestNormalizePCM(t *testing.T) {
	pcm := SamplesToBytes([]int16{1000, -2000})
	samples, err := BytesToSamples(NormalizePCM(pcm, 8000, 8))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if samples[0] != 4000 || samples[1] != -8000 {
		t.Errorf("Expected [4000 -8000], got %v", samples)
	}

	odd := []byte{1, 2, 3}
	if got := NormalizePCM(odd, 8000, 8); len(got) != 3 {
		t.Errorf("Expected odd-length input unchanged, got %v", got)
	}
}

func TestFormat_FrameBytes(t *testing.T) {
	f := testFormat
	if got := f.FrameBytes(20); got != 640 {
		t.Errorf("Expected 640 bytes per 20ms frame, got %d", got)
	}
	if got := f.BytesPerSecond(); got != 32000 {
		t.Errorf("Expected 32000 bytes per second, got %d", got)
	}
	if err := (Format{}).Validate(); err == nil {
		t.Error("Expected zero format to be invalid")
	}
}
