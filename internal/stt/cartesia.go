package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/resilience"
)

const defaultCartesiaURL = "wss://api.cartesia.ai/stt/websocket"

// CartesiaConfig configures the Cartesia streaming STT websocket.
type CartesiaConfig struct {
	URL     string
	APIKey  string
	Model   string
	Version string
}

// CartesiaBackend streams microphone audio to Cartesia's STT websocket and
// emits the running transcript as it arrives.
type CartesiaBackend struct {
	cfg       CartesiaConfig
	source    audio.Source
	format    audio.Format
	breaker   *resilience.CircuitBreaker
	reconnect *resilience.ReconnectConfig
	logger    zerolog.Logger
}

type cartesiaMessage struct {
	Type    string `json:"type"` // "transcript", "flush_done", "done", "error"
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewCartesiaBackend creates a Cartesia streaming backend. breaker and reconnect may be nil.
func NewCartesiaBackend(cfg CartesiaConfig, source audio.Source, format audio.Format, breaker *resilience.CircuitBreaker, reconnect *resilience.ReconnectConfig) *CartesiaBackend {
	if cfg.URL == "" {
		cfg.URL = defaultCartesiaURL
	}
	if cfg.Model == "" {
		cfg.Model = "ink-whisper"
	}
	if reconnect == nil {
		reconnect = resilience.DefaultReconnectConfig()
	}
	return &CartesiaBackend{
		cfg:       cfg,
		source:    source,
		format:    format,
		breaker:   breaker,
		reconnect: reconnect,
		logger:    observability.WithComponent("stt").With().Str("backend", "cartesia").Logger(),
	}
}

func (c *CartesiaBackend) Name() string { return "cartesia" }

func (c *CartesiaBackend) Capabilities() Capabilities {
	return Capabilities{Streaming: true, OnDevice: No}
}

func (c *CartesiaBackend) StreamTranscripts(ctx context.Context, locale string) (*Stream, error) {
	conn, err := c.connect(ctx, locale)
	if err != nil {
		return nil, err
	}

	capture, err := c.source.Open(ctx, c.format)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open audio capture: %w", err)
	}

	stream, emit := NewStream(ctx, 16, stopCapture(capture, c.logger))
	context.AfterFunc(emit.Context(), func() { conn.Close() })

	go c.pumpAudio(emit.Context(), conn, capture)
	go func() {
		emit.Finish(c.readTranscripts(emit, conn))
	}()
	return stream, nil
}

func (c *CartesiaBackend) connect(ctx context.Context, locale string) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse cartesia url: %w", err)
	}
	q := u.Query()
	q.Set("model", c.cfg.Model)
	if locale != "" {
		q.Set("language", baseLanguage(locale))
	}
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(c.format.SampleRate))
	q.Set("api_key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", c.cfg.APIKey)
	if c.cfg.Version != "" {
		headers.Set("Cartesia-Version", c.cfg.Version)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	var conn *websocket.Conn
	err = resilience.Reconnect(ctx, func() error {
		return callWithBreaker(c.breaker, func() error {
			var resp *http.Response
			var dialErr error
			conn, resp, dialErr = dialer.DialContext(ctx, u.String(), headers)
			if dialErr != nil && resp != nil {
				defer resp.Body.Close()
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return dialErr
		})
	}, c.reconnect)
	if err != nil {
		return nil, fmt.Errorf("cartesia: %w", err)
	}
	return conn, nil
}

// pumpAudio forwards captured frames until the capture ends, then asks the
// server to finalize and close the session. It is the connection's only writer.
func (c *CartesiaBackend) pumpAudio(ctx context.Context, conn *websocket.Conn, capture audio.Capture) {
	write := conn.WriteMessage

	for {
		select {
		case frame, ok := <-capture.Frames():
			if !ok {
				if err := write(websocket.TextMessage, []byte("finalize")); err != nil {
					c.logger.Debug().Err(err).Msg("Failed to send finalize")
					return
				}
				if err := write(websocket.TextMessage, []byte("done")); err != nil {
					c.logger.Debug().Err(err).Msg("Failed to send done")
				}
				return
			}
			if err := write(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to send audio frame")
				return
			}
			observability.RecordAudioBytes(c.Name(), len(frame))
		case <-ctx.Done():
			return
		}
	}
}

func (c *CartesiaBackend) readTranscripts(emit *Emitter, conn *websocket.Conn) error {
	ctx := emit.Context()
	var text segmentText

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emitFinal(emit, text.String())
				return nil
			}
			return fmt.Errorf("cartesia: read: %w", err)
		}

		var msg cartesiaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("Ignoring malformed message")
			continue
		}

		switch msg.Type {
		case "transcript":
			current := text.update(msg.Text, msg.IsFinal)
			if current == "" {
				continue
			}
			if !emit.Emit(Transcript{Text: current}) {
				return ctx.Err()
			}
		case "flush_done":
		case "done":
			c.emitFinal(emit, text.String())
			return nil
		case "error":
			detail := msg.Error
			if detail == "" {
				detail = msg.Message
			}
			return fmt.Errorf("cartesia: %s", detail)
		default:
			c.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown message type")
		}
	}
}

func (c *CartesiaBackend) emitFinal(emit *Emitter, text string) {
	if text == "" {
		return
	}
	emit.Emit(Transcript{Text: text, IsFinal: true})
}
