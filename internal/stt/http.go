package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/resilience"
)

// HTTPConfig points HTTPBackend at an OpenAI-compatible transcription endpoint.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTPBackend records until released, then uploads the recording to a
// remote transcription API and emits the response as one final transcript.
type HTTPBackend struct {
	cfg     HTTPConfig
	client  *http.Client
	source  audio.Source
	format  audio.Format
	vad     *audio.VADConfig
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  zerolog.Logger
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewHTTPBackend creates a batch transcription backend. breaker and retry may be nil.
func NewHTTPBackend(cfg HTTPConfig, source audio.Source, format audio.Format, vad *audio.VADConfig, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig) *HTTPBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &HTTPBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		source:  source,
		format:  format,
		vad:     vad,
		breaker: breaker,
		retry:   retry,
		logger:  observability.WithComponent("stt").With().Str("backend", "http").Logger(),
	}
}

func (h *HTTPBackend) Name() string { return "http" }

func (h *HTTPBackend) Capabilities() Capabilities {
	return Capabilities{Streaming: false, OnDevice: No}
}

func (h *HTTPBackend) StreamTranscripts(ctx context.Context, locale string) (*Stream, error) {
	if h.breaker != nil && h.breaker.GetState() == resilience.StateOpen {
		return nil, fmt.Errorf("transcription api: %w", resilience.ErrCircuitOpen)
	}
	capture, err := h.source.Open(ctx, h.format)
	if err != nil {
		return nil, fmt.Errorf("open audio capture: %w", err)
	}

	stream, emit := NewStream(ctx, 1, stopCapture(capture, h.logger))
	go func() {
		emit.Finish(h.run(emit, capture, locale))
	}()
	return stream, nil
}

func (h *HTTPBackend) run(emit *Emitter, capture audio.Capture, locale string) error {
	ctx := emit.Context()
	pcm, ok, err := recordUtterance(ctx, capture, h.Name(), h.vad)
	if err != nil || !ok {
		return err
	}

	wavData, err := encodeWAV(pcm, h.format)
	if err != nil {
		return err
	}

	var text string
	err = resilience.Retry(ctx, func(ctx context.Context) error {
		return callWithBreaker(h.breaker, func() error {
			var uploadErr error
			text, uploadErr = h.upload(ctx, wavData, locale)
			return uploadErr
		})
	}, h.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return fmt.Errorf("transcription api: %w", err)
	}

	text = strings.TrimSpace(text)
	if text != "" {
		emit.Emit(Transcript{Text: text, IsFinal: true})
	}
	return nil
}

func (h *HTTPBackend) upload(ctx context.Context, wavData []byte, locale string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if h.cfg.Model != "" {
		_ = writer.WriteField("model", h.cfg.Model)
	}
	if locale != "" {
		_ = writer.WriteField("language", baseLanguage(locale))
	}
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resilience.NewRetryableError(fmt.Errorf("read response: %w", err))
	}

	h.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Int("audio_bytes", len(wavData)).
		Msg("Transcription API responded")

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", resilience.NewRetryableError(statusErr)
		}
		return "", statusErr
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	return parsed.Text, nil
}

// encodeWAV goes through a temp file because the WAV encoder needs to seek
// back and patch the header sizes.
func encodeWAV(pcm []byte, format audio.Format) ([]byte, error) {
	path, err := audio.WriteTempWAV(pcm, format)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)
	return os.ReadFile(path)
}
