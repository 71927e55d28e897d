package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/config"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/orchestrator"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/stt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("backend", cfg.Backend).
		Str("locale", cfg.Locale).
		Dur("stop_timeout", cfg.StopTimeout()).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice keyboard starting")

	source := newSource(cfg)
	backend, err := stt.NewBackend(cfg, source)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create transcription backend")
	}

	caps := backend.Capabilities()
	if !caps.SupportsLocale(cfg.Locale) {
		logger.Warn().
			Str("locale", cfg.Locale).
			Strs("supported", caps.Locales).
			Msg("Backend does not list the configured locale")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if cfg.MetricsEnabled {
		server = newMetricsServer(cfg)
		go func() {
			logger.Info().Str("port", cfg.MetricsPort).Msg("Metrics server listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("Metrics server failed to start")
			}
		}()
	}

	ptt := &pushToTalk{
		orch:        orchestrator.New(),
		backend:     backend,
		locale:      cfg.Locale,
		stopTimeout: cfg.StopTimeout(),
		out:         os.Stdout,
		status:      os.Stderr,
		logger:      observability.WithComponent("cli"),
	}
	if err := ptt.run(ctx, os.Stdin); err != nil {
		logger.Error().Err(err).Msg("Push-to-talk loop failed")
	}

	if server != nil {
		logger.Info().Msg("Shutting down metrics server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Metrics server forced to shutdown")
		}
	}

	logger.Info().Msg("Voice keyboard exited")
}

// newSource replays AUDIO_INPUT_FILE when set, otherwise captures from the
// default microphone.
func newSource(cfg *config.Config) audio.Source {
	if cfg.AudioInputFile != "" {
		return audio.NewFileSource(cfg.AudioInputFile, cfg.AudioFrameMs)
	}
	return audio.NewMicrophone(cfg.AudioBufferSize, cfg.AudioFrameMs)
}

func newMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(readinessChecks(cfg)))
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.MetricsPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// readinessChecks validates configuration rather than calling remote
// services, so probing /ready costs nothing.
func readinessChecks(cfg *config.Config) map[string]observability.HealthCheckFunc {
	checks := map[string]observability.HealthCheckFunc{
		"backend": func(ctx context.Context) (bool, error) {
			if err := cfg.Validate(); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	if cfg.AudioInputFile != "" {
		checks["audio_input"] = func(ctx context.Context) (bool, error) {
			if _, err := os.Stat(cfg.AudioInputFile); err != nil {
				return false, fmt.Errorf("audio input file: %w", err)
			}
			return true, nil
		}
	}
	return checks
}
