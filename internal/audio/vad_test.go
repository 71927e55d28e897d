package audio

import (
	"testing"
)

func constFrame(n int, amplitude int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return samples
}

func testVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameSize:       320,
		MinSpeechFrames: 3,
	}
}

func TestVADDetector_ProcessFrame_Speech(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	samples := constFrame(320, 5000)

	for i := 0; i < 5; i++ {
		isSpeaking, speechStarted, _ := vad.ProcessFrame(samples)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if i == 0 && !speechStarted {
			t.Error("Expected speech to start on first frame")
		}
		if i > 0 && speechStarted {
			t.Errorf("Expected speechStarted only once, got it on frame %d", i)
		}
	}
	if vad.SpeechFrames() != 5 {
		t.Errorf("Expected 5 speech frames, got %d", vad.SpeechFrames())
	}
}

func TestVADDetector_ProcessFrame_Silence(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	samples := constFrame(320, 10)

	for i := 0; i < 15; i++ {
		isSpeaking, _, _ := vad.ProcessFrame(samples)
		if isSpeaking {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_SpeechToSilence(t *testing.T) {
	vad := NewVADDetector(testVADConfig())

	for i := 0; i < 5; i++ {
		vad.ProcessFrame(constFrame(320, 5000))
	}

	speechEnded := false
	for i := 0; i < 15; i++ {
		if _, _, ended := vad.ProcessFrame(constFrame(320, 10)); ended {
			speechEnded = true
			break
		}
	}
	if !speechEnded {
		t.Error("Expected speech to end after silence frames")
	}
}

func TestVADDetector_Threshold(t *testing.T) {
	lowConfig := testVADConfig()
	lowConfig.EnergyThreshold = 100.0
	highConfig := testVADConfig()
	highConfig.EnergyThreshold = 5000.0

	samples := constFrame(320, 1000)

	if isSpeaking, _, _ := NewVADDetector(lowConfig).ProcessFrame(samples); !isSpeaking {
		t.Error("Expected low threshold to detect speech")
	}
	if isSpeaking, _, _ := NewVADDetector(highConfig).ProcessFrame(samples); isSpeaking {
		t.Error("Expected high threshold to not detect speech")
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	vad.ProcessFrame(constFrame(320, 5000))
	if !vad.IsSpeaking() {
		t.Fatal("Expected speech to be detected")
	}

	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false after reset")
	}
	if vad.SpeechFrames() != 0 {
		t.Errorf("Expected speech frame count reset, got %d", vad.SpeechFrames())
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.EnergyThreshold != 500.0 {
		t.Errorf("Expected default EnergyThreshold 500.0, got %f", config.EnergyThreshold)
	}
	if config.FrameSize != 320 {
		t.Errorf("Expected default FrameSize 320, got %d", config.FrameSize)
	}
	if config.MinSpeechFrames != 3 {
		t.Errorf("Expected default MinSpeechFrames 3, got %d", config.MinSpeechFrames)
	}
}

func TestContainsSpeech(t *testing.T) {
	cfg := testVADConfig()

	silent := SamplesToBytes(constFrame(320*20, 10))
	if ContainsSpeech(silent, cfg) {
		t.Error("Expected silent recording to contain no speech")
	}

	// two loud frames are below MinSpeechFrames
	blip := SamplesToBytes(append(constFrame(320*2, 5000), constFrame(320*10, 10)...))
	if ContainsSpeech(blip, cfg) {
		t.Error("Expected a short blip not to count as speech")
	}

	speech := SamplesToBytes(append(constFrame(320*10, 10), constFrame(320*5, 5000)...))
	if !ContainsSpeech(speech, cfg) {
		t.Error("Expected loud recording to contain speech")
	}

	if ContainsSpeech(nil, cfg) {
		t.Error("Expected empty recording to contain no speech")
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	rms := CalculateRMS(samples)

	// sqrt((1000^2 + 1000^2 + 2000^2 + 2000^2) / 4)
	expected := 1581.14
	tolerance := 1.0

	if rms < expected-tolerance || rms > expected+tolerance {
		t.Errorf("Expected RMS around %.2f, got %.2f", expected, rms)
	}
}

func TestDetectSilence(t *testing.T) {
	if DetectSilence([]int16{5000, 5000, 5000}, 1000.0) {
		t.Error("Expected high energy samples to not be silence")
	}
	if !DetectSilence([]int16{10, 10, 10}, 1000.0) {
		t.Error("Expected low energy samples to be silence")
	}
}
