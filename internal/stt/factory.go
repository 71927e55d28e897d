package stt

import (
	"fmt"
	"time"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/config"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/resilience"
)

// NewBackend builds the backend named by cfg.Backend, capturing from source.
func NewBackend(cfg *config.Config, source audio.Source) (Backend, error) {
	format := audio.Format{SampleRate: cfg.AudioSampleRate, Channels: cfg.AudioChannels}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	vad := audio.DefaultVADConfig()
	vad.EnergyThreshold = cfg.VADEnergyThreshold
	vad.FrameSize = format.FrameBytes(cfg.AudioFrameMs) / 2

	reconnect := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Second,
	}
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	switch cfg.Backend {
	case config.BackendDeepgram:
		return NewDeepgramBackend(DeepgramConfig{
			APIKey:   cfg.DeepgramAPIKey,
			Model:    cfg.DeepgramModel,
			Endpoint: cfg.DeepgramEndpoint,
		}, source, format, newBreaker(cfg, "deepgram"), reconnect), nil

	case config.BackendCartesia:
		return NewCartesiaBackend(CartesiaConfig{
			URL:     cfg.CartesiaURL,
			APIKey:  cfg.CartesiaAPIKey,
			Model:   cfg.CartesiaModelID,
			Version: cfg.CartesiaVersion,
		}, source, format, newBreaker(cfg, "cartesia"), reconnect), nil

	case config.BackendWhisper:
		return NewWhisperCLIBackend(cfg.WhisperCommand, cfg.WhisperModelPath, source, format, vad)

	case config.BackendHTTP:
		return NewHTTPBackend(HTTPConfig{
			URL:     cfg.TranscriptionAPIURL,
			APIKey:  cfg.TranscriptionAPIKey,
			Model:   cfg.TranscriptionModel,
			Timeout: time.Duration(cfg.TranscriptionTimeout) * time.Second,
		}, source, format, vad, newBreaker(cfg, "transcription_api"), retry), nil

	case config.BackendScripted:
		return NewScriptedBackend("scripted",
			Partial("testing"),
			Pause(150*time.Millisecond),
			Partial("testing one two"),
			AwaitRelease(),
			Final("testing one two three"),
		), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

func newBreaker(cfg *config.Config, service string) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(
		service,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	logger := observability.WithComponent("resilience")
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().
			Str("service", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	})
	return cb
}
