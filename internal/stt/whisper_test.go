package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-whisper.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

const fakeWhisper = `
while [ $# -gt 0 ]; do
  case "$1" in
    --audio) audio="$2"; shift ;;
    --language) lang="$2"; shift ;;
    --model) model="$2"; shift ;;
    --threads) threads="$2"; shift ;;
  esac
  shift
done
[ -f "$audio" ] || { echo "missing audio" >&2; exit 1; }
head -c 4 "$audio" | grep -q RIFF || { echo "not a wav" >&2; exit 1; }
printf '{"text": " hello from %s with %s on %s threads "}' "$lang" "$model" "$threads"
`

func TestWhisperCLIBackend_TranscribesRecording(t *testing.T) {
	script := writeScript(t, fakeWhisper)
	source := &toneSource{pcm: speechPCM(500)}

	b, err := NewWhisperCLIBackend(script+" --threads 2", "base.en", source, testFormat, testVAD())
	if err != nil {
		t.Fatalf("NewWhisperCLIBackend failed: %v", err)
	}

	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}

	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 transcript, got %d", len(got))
	}
	if got[0].Text != "hello from en with base.en on 2 threads" {
		t.Errorf("Unexpected text: '%s'", got[0].Text)
	}
	if !got[0].IsFinal {
		t.Error("Expected the transcript to be final")
	}
}

func TestWhisperCLIBackend_CancelEndsRecording(t *testing.T) {
	script := writeScript(t, `printf 'plain text output'`)
	source := &toneSource{pcm: speechPCM(10000), realtime: true}

	b, err := NewWhisperCLIBackend(script, "", source, testFormat, testVAD())
	if err != nil {
		t.Fatalf("NewWhisperCLIBackend failed: %v", err)
	}
	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	stream.Cancel()
	stream.Cancel()

	start := time.Now()
	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Expected recording to stop on cancel, took %v", elapsed)
	}
	if len(got) != 1 || got[0].Text != "plain text output" {
		t.Errorf("Expected plain text output, got %+v", got)
	}
}

func TestWhisperCLIBackend_SkipsSilence(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	script := writeScript(t, "touch "+marker+"\necho '{\"text\": \"ghost\"}'\n")
	source := &toneSource{pcm: silencePCM(500)}

	b, err := NewWhisperCLIBackend(script, "", source, testFormat, testVAD())
	if err != nil {
		t.Fatalf("NewWhisperCLIBackend failed: %v", err)
	}
	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}

	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no transcripts for silence, got %+v", got)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Error("Expected the command not to run for a silent recording")
	}
}

func TestWhisperCLIBackend_CommandFailure(t *testing.T) {
	script := writeScript(t, "echo 'model not found' >&2\nexit 3\n")
	source := &toneSource{pcm: speechPCM(300)}

	b, err := NewWhisperCLIBackend(script, "", source, testFormat, nil)
	if err != nil {
		t.Fatalf("NewWhisperCLIBackend failed: %v", err)
	}
	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}

	_, err = Collect(context.Background(), stream)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("Expected command failure with stderr, got %v", err)
	}
}

func TestWhisperCLIBackend_OpenFailure(t *testing.T) {
	b, err := NewWhisperCLIBackend("whisper-cli", "", &toneSource{err: errOpen}, testFormat, nil)
	if err != nil {
		t.Fatalf("NewWhisperCLIBackend failed: %v", err)
	}

	_, err = b.StreamTranscripts(context.Background(), "en-US")
	if !errors.Is(err, errOpen) {
		t.Errorf("Expected open error, got %v", err)
	}
}

func TestNewWhisperCLIBackend_BadCommand(t *testing.T) {
	if _, err := NewWhisperCLIBackend("", "", &toneSource{}, testFormat, nil); err == nil {
		t.Error("Expected error for empty command")
	}
	if _, err := NewWhisperCLIBackend(`whisper "unterminated`, "", &toneSource{}, testFormat, nil); err == nil {
		t.Error("Expected error for unbalanced quotes")
	}
}

func TestParseWhisperOutput(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		expected string
	}{
		{"json", `{"text": " hi there "}`, "hi there"},
		{"plain", "  hi there\n", "hi there"},
		{"broken json", `{"text": `, `{"text":`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseWhisperOutput([]byte(tt.out)); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}
