package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Backend names accepted by BACKEND.
const (
	BackendDeepgram = "deepgram"
	BackendCartesia = "cartesia"
	BackendWhisper  = "whisper"
	BackendHTTP     = "http"
	BackendScripted = "scripted"
)

// KnownBackends lists every backend name the factory understands.
var KnownBackends = []string{BackendDeepgram, BackendCartesia, BackendWhisper, BackendHTTP, BackendScripted}

// Config holds all configuration for the voice keyboard
type Config struct {
	// Session configuration
	Backend       string `envconfig:"BACKEND" default:"deepgram"`      // deepgram, cartesia, whisper, http, scripted
	Locale        string `envconfig:"LOCALE" default:"en-US"`          // BCP 47 locale passed to the backend
	StopTimeoutMs int    `envconfig:"STOP_TIMEOUT_MS" default:"2000"` // Upper bound on waiting for the final transcript

	// Batch backends (whisper, http) only start transcribing once recording
	// stops, so Stop waits at least this long for them.
	BatchStopTimeoutMs int `envconfig:"BATCH_STOP_TIMEOUT_MS" default:"30000"`

	// Audio capture configuration
	AudioSampleRate int    `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioChannels   int    `envconfig:"AUDIO_CHANNELS" default:"1"`
	AudioFrameMs    int    `envconfig:"AUDIO_FRAME_MS" default:"20"`
	AudioBufferSize int    `envconfig:"AUDIO_BUFFER_SIZE" default:"64000"` // Ring buffer size in bytes
	AudioInputFile  string `envconfig:"AUDIO_INPUT_FILE" default:""`       // Replay a WAV/PCM file instead of the microphone

	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD

	// Deepgram streaming STT
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramEndpoint string `envconfig:"DEEPGRAM_ENDPOINT" default:""` // Override host, mostly for self-hosted deployments

	// Cartesia streaming STT
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"ink-whisper"`
	CartesiaURL     string `envconfig:"CARTESIA_URL" default:"wss://api.cartesia.ai/stt/websocket"`
	CartesiaVersion string `envconfig:"CARTESIA_VERSION" default:"2025-04-16"`

	// Local whisper command
	WhisperCommand   string `envconfig:"WHISPER_COMMAND" default:"whisper-cli"`
	WhisperModelPath string `envconfig:"WHISPER_MODEL_PATH" default:""`

	// OpenAI-compatible transcription endpoint
	TranscriptionAPIURL  string `envconfig:"TRANSCRIPTION_API_URL" default:"https://api.openai.com/v1/audio/transcriptions"`
	TranscriptionAPIKey  string `envconfig:"TRANSCRIPTION_API_KEY" default:""`
	TranscriptionModel   string `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`
	TranscriptionTimeout int    `envconfig:"TRANSCRIPTION_TIMEOUT" default:"30"` // seconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"`         // Maximum connection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"500"`            // Connection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"` // Serve /metrics, /health and /ready
	MetricsPort    string `envconfig:"METRICS_PORT" default:"9090"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for backend %q", c.Backend)
		}
	case BackendCartesia:
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required for backend %q", c.Backend)
		}
	case BackendHTTP:
		if c.TranscriptionAPIURL == "" {
			return fmt.Errorf("TRANSCRIPTION_API_URL is required for backend %q", c.Backend)
		}
	case BackendWhisper:
		if strings.TrimSpace(c.WhisperCommand) == "" {
			return fmt.Errorf("WHISPER_COMMAND is required for backend %q", c.Backend)
		}
	case BackendScripted:
	default:
		return fmt.Errorf("unknown BACKEND %q (expected one of %s)", c.Backend, strings.Join(KnownBackends, ", "))
	}

	if c.StopTimeoutMs <= 0 {
		return fmt.Errorf("STOP_TIMEOUT_MS must be positive, got %d", c.StopTimeoutMs)
	}
	if c.BatchStopTimeoutMs <= 0 && c.IsBatchBackend() {
		return fmt.Errorf("BATCH_STOP_TIMEOUT_MS must be positive, got %d", c.BatchStopTimeoutMs)
	}
	if c.AudioSampleRate <= 0 || c.AudioChannels <= 0 {
		return fmt.Errorf("invalid audio format: %d Hz, %d channels", c.AudioSampleRate, c.AudioChannels)
	}
	if c.AudioFrameMs <= 0 {
		return fmt.Errorf("AUDIO_FRAME_MS must be positive, got %d", c.AudioFrameMs)
	}
	if c.AudioBufferSize <= 0 {
		return fmt.Errorf("AUDIO_BUFFER_SIZE must be positive, got %d", c.AudioBufferSize)
	}

	return nil
}

// IsBatchBackend reports whether the selected backend records the whole
// utterance and transcribes it after Stop.
func (c *Config) IsBatchBackend() bool {
	return c.Backend == BackendWhisper || c.Backend == BackendHTTP
}

// StopTimeout returns how long Stop waits for the backend's result. Batch
// backends get at least BATCH_STOP_TIMEOUT_MS, and the http backend at least
// one full request timeout.
func (c *Config) StopTimeout() time.Duration {
	timeout := time.Duration(c.StopTimeoutMs) * time.Millisecond
	if !c.IsBatchBackend() {
		return timeout
	}

	if batch := time.Duration(c.BatchStopTimeoutMs) * time.Millisecond; batch > timeout {
		timeout = batch
	}
	if c.Backend == BackendHTTP {
		if request := time.Duration(c.TranscriptionTimeout) * time.Second; request > timeout {
			timeout = request
		}
	}
	return timeout
}
