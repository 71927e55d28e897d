package audio

// VADConfig holds configuration for energy-based voice activity detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // consecutive silent frames that end an utterance
	FrameSize       int     // samples per frame
	MinSpeechFrames int     // speech frames required before a recording counts as speech
}

// DefaultVADConfig returns thresholds tuned for 16kHz mono push-to-talk audio
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   25,  // 500ms at 20ms frames
		FrameSize:       320, // 20ms at 16kHz
		MinSpeechFrames: 3,
	}
}

// VADDetector tracks speech/silence transitions frame by frame.
// It is not safe for concurrent use.
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	speechFrames   int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame classifies one frame.
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := !DetectSilence(samples, v.config.EnergyThreshold)

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		v.speechFrames++
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.speechFrames = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// SpeechFrames returns how many frames were classified as speech since the last reset
func (v *VADDetector) SpeechFrames() int {
	return v.speechFrames
}

// ContainsSpeech reports whether a whole PCM16 mono recording holds at least
// MinSpeechFrames frames above the energy threshold. Batch backends use it to
// skip uploading silent recordings.
func ContainsSpeech(pcm []byte, config *VADConfig) bool {
	if config == nil {
		config = DefaultVADConfig()
	}
	samples, err := BytesToSamples(pcm)
	if err != nil || len(samples) == 0 {
		return false
	}

	frameSize := config.FrameSize
	if frameSize <= 0 {
		frameSize = len(samples)
	}
	minFrames := config.MinSpeechFrames
	if minFrames <= 0 {
		minFrames = 1
	}

	vad := NewVADDetector(config)
	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		vad.ProcessFrame(samples[start:end])
		if vad.SpeechFrames() >= minFrames {
			return true
		}
	}
	return false
}

// DetectSilence reports whether a frame's RMS energy is below threshold
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
