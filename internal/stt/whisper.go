package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/audio"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
)

// WhisperCLIBackend records until released, then runs a local whisper
// command over the recording and emits its output as one final transcript.
type WhisperCLIBackend struct {
	cmd       []string
	modelPath string
	source    audio.Source
	format    audio.Format
	vad       *audio.VADConfig
	logger    zerolog.Logger
}

type whisperResult struct {
	Text string `json:"text"`
}

// NewWhisperCLIBackend parses command with shell quoting rules. The command
// receives --audio <wav> plus --model and --language when known.
func NewWhisperCLIBackend(command, modelPath string, source audio.Source, format audio.Format, vad *audio.VADConfig) (*WhisperCLIBackend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse whisper command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("whisper command is empty")
	}
	return &WhisperCLIBackend{
		cmd:       args,
		modelPath: modelPath,
		source:    source,
		format:    format,
		vad:       vad,
		logger:    observability.WithComponent("stt").With().Str("backend", "whisper").Logger(),
	}, nil
}

func (w *WhisperCLIBackend) Name() string { return "whisper" }

func (w *WhisperCLIBackend) Capabilities() Capabilities {
	return Capabilities{Streaming: false, OnDevice: Yes}
}

func (w *WhisperCLIBackend) StreamTranscripts(ctx context.Context, locale string) (*Stream, error) {
	capture, err := w.source.Open(ctx, w.format)
	if err != nil {
		return nil, fmt.Errorf("open audio capture: %w", err)
	}

	stream, emit := NewStream(ctx, 1, stopCapture(capture, w.logger))
	go func() {
		emit.Finish(w.run(emit, capture, locale))
	}()
	return stream, nil
}

func (w *WhisperCLIBackend) run(emit *Emitter, capture audio.Capture, locale string) error {
	ctx := emit.Context()
	pcm, ok, err := recordUtterance(ctx, capture, w.Name(), w.vad)
	if err != nil || !ok {
		return err
	}

	text, err := w.transcribe(ctx, pcm, locale)
	if err != nil {
		return err
	}
	if text != "" {
		emit.Emit(Transcript{Text: text, IsFinal: true})
	}
	return nil
}

func (w *WhisperCLIBackend) transcribe(ctx context.Context, pcm []byte, locale string) (string, error) {
	path, err := audio.WriteTempWAV(pcm, w.format)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	cmdArgs := append([]string{}, w.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", path)
	if w.modelPath != "" {
		cmdArgs = append(cmdArgs, "--model", w.modelPath)
	}
	if locale != "" {
		cmdArgs = append(cmdArgs, "--language", baseLanguage(locale))
	}

	command := exec.CommandContext(ctx, w.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("whisper command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseWhisperOutput(stdout.Bytes()), nil
}

// parseWhisperOutput accepts {"text": "..."} or plain text on stdout.
func parseWhisperOutput(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var resp whisperResult
		if err := json.Unmarshal(trimmed, &resp); err == nil {
			return strings.TrimSpace(resp.Text)
		}
	}
	return string(trimmed)
}
