package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/resilience"
)

// DeepgramConfig configures the Deepgram live transcription connection.
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Endpoint string // optional host override
}

// DeepgramBackend streams microphone audio to Deepgram's live API.
type DeepgramBackend struct {
	cfg       DeepgramConfig
	source    audio.Source
	format    audio.Format
	breaker   *resilience.CircuitBreaker
	reconnect *resilience.ReconnectConfig
	logger    zerolog.Logger
}

// NewDeepgramBackend creates a Deepgram streaming backend. breaker and reconnect may be nil.
func NewDeepgramBackend(cfg DeepgramConfig, source audio.Source, format audio.Format, breaker *resilience.CircuitBreaker, reconnect *resilience.ReconnectConfig) *DeepgramBackend {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if reconnect == nil {
		reconnect = resilience.DefaultReconnectConfig()
	}
	return &DeepgramBackend{
		cfg:       cfg,
		source:    source,
		format:    format,
		breaker:   breaker,
		reconnect: reconnect,
		logger:    observability.WithComponent("stt").With().Str("backend", "deepgram").Logger(),
	}
}

func (d *DeepgramBackend) Name() string { return "deepgram" }

func (d *DeepgramBackend) Capabilities() Capabilities {
	return Capabilities{Streaming: true, OnDevice: No}
}

// deepgramHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type deepgramHandler struct {
	*websocketv1api.DefaultCallbackHandler

	mu     sync.Mutex
	emit   *Emitter
	text   segmentText
	closed bool
	logger zerolog.Logger
}

// attach hands the handler its emitter once the stream exists.
func (h *deepgramHandler) attach(emit *Emitter) {
	h.mu.Lock()
	h.emit = emit
	h.mu.Unlock()
}

// Message folds each result into the running transcript.
func (h *deepgramHandler) Message(msg *msginterfaces.MessageResponse) error {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return nil
	}
	alt := msg.Channel.Alternatives[0]

	// emitting under h.mu keeps partials from landing after finish's final
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.emit == nil {
		return nil
	}
	if current := h.text.update(alt.Transcript, msg.IsFinal); current != "" {
		h.emit.Emit(Transcript{Text: current})
	}
	return nil
}

// The SDK's default handler prints these events to stdout, which is where
// transcribed text goes.

func (h *deepgramHandler) Open(or *msginterfaces.OpenResponse) error {
	h.logger.Debug().Msg("Deepgram connection opened")
	return nil
}

func (h *deepgramHandler) Metadata(md *msginterfaces.MetadataResponse) error {
	return nil
}

func (h *deepgramHandler) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	h.logger.Debug().Msg("Deepgram: speech started")
	return nil
}

func (h *deepgramHandler) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	h.logger.Debug().Msg("Deepgram: utterance ended")
	return nil
}

func (h *deepgramHandler) UnhandledEvent(byData []byte) error {
	h.logger.Debug().Int("bytes", len(byData)).Msg("Deepgram: unhandled event")
	return nil
}

// Error ends the stream with the server's error.
func (h *deepgramHandler) Error(er *msginterfaces.ErrorResponse) error {
	if er == nil {
		h.finish(errors.New("deepgram: unknown error"))
		return nil
	}
	h.logger.Warn().Interface("error", er).Msg("Deepgram error")
	h.finish(fmt.Errorf("deepgram: %+v", *er))
	return nil
}

// Close completes the stream with whatever text was recognized.
func (h *deepgramHandler) Close(cr *msginterfaces.CloseResponse) error {
	h.finish(nil)
	return nil
}

// finish emits the accumulated text as the final transcript (unless err is
// set) and completes the stream. Only the first call has an effect.
func (h *deepgramHandler) finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.emit == nil {
		return
	}
	h.closed = true

	if final := h.text.String(); err == nil && final != "" {
		h.emit.Emit(Transcript{Text: final, IsFinal: true})
	}
	h.emit.Finish(err)
}

func (d *DeepgramBackend) StreamTranscripts(ctx context.Context, locale string) (*Stream, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       locale,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       d.format.Channels,
		SampleRate:     d.format.SampleRate,
	}
	cOptions := &interfaces.ClientOptions{}
	if d.cfg.Endpoint != "" {
		cOptions.Host = d.cfg.Endpoint
	}

	handler := &deepgramHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		logger:                 d.logger,
	}

	connCtx, cancelConn := context.WithCancel(ctx)
	client, err := listenClient.NewWSUsingCallback(connCtx, d.cfg.APIKey, cOptions, tOptions, handler)
	if err != nil {
		cancelConn()
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	err = resilience.Reconnect(ctx, func() error {
		return callWithBreaker(d.breaker, func() error {
			if !client.Connect() {
				return fmt.Errorf("deepgram: websocket connect failed")
			}
			return nil
		})
	}, d.reconnect)
	if err != nil {
		cancelConn()
		return nil, err
	}

	capture, err := d.source.Open(ctx, d.format)
	if err != nil {
		client.Finish()
		cancelConn()
		return nil, fmt.Errorf("open audio capture: %w", err)
	}

	stream, emit := NewStream(ctx, 16, stopCapture(capture, d.logger))
	handler.attach(emit)

	d.logger.Debug().Str("model", d.cfg.Model).Str("locale", locale).Msg("Deepgram streaming started")

	go func() {
		defer cancelConn()
		d.pumpAudio(emit.Context(), client, capture)
		// Finish flushes the connection; Close normally fires from it, and
		// this covers the case where it doesn't.
		client.Finish()
		handler.finish(nil)
	}()
	return stream, nil
}

func (d *DeepgramBackend) pumpAudio(ctx context.Context, client *listenClient.WSCallback, capture audio.Capture) {
	for {
		select {
		case frame, ok := <-capture.Frames():
			if !ok {
				return
			}
			err := callWithBreaker(d.breaker, func() error {
				if _, err := client.Write(frame); err != nil {
					return fmt.Errorf("failed to send audio to Deepgram: %w", err)
				}
				return nil
			})
			if err != nil {
				d.logger.Warn().Err(err).Msg("Dropping audio frame")
				continue
			}
			observability.RecordAudioBytes(d.Name(), len(frame))
		case <-ctx.Done():
			return
		}
	}
}
