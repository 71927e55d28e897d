package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/resilience"
)

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func transcriptionServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBackend_UploadsRecording(t *testing.T) {
	srv := transcriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Expected bearer auth, got '%s'", auth)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("Expected model 'whisper-1', got '%s'", model)
		}
		if lang := r.FormValue("language"); lang != "fr" {
			t.Errorf("Expected language 'fr', got '%s'", lang)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file part: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if !bytes.HasPrefix(data, []byte("RIFF")) {
			t.Error("Expected a WAV upload")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": " bonjour tout le monde "})
	})

	b := NewHTTPBackend(HTTPConfig{URL: srv.URL, APIKey: "secret", Model: "whisper-1"},
		&toneSource{pcm: speechPCM(400)}, testFormat, testVAD(), nil, fastRetry())

	stream, err := b.StreamTranscripts(context.Background(), "fr-FR")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}
	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Text != "bonjour tout le monde" || !got[0].IsFinal {
		t.Errorf("Expected one final transcript, got %+v", got)
	}
}

func TestHTTPBackend_RetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	srv := transcriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "second time lucky"})
	})

	b := NewHTTPBackend(HTTPConfig{URL: srv.URL}, &toneSource{pcm: speechPCM(400)}, testFormat, nil, nil, fastRetry())
	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}

	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Text != "second time lucky" {
		t.Errorf("Expected the retried transcript, got %+v", got)
	}
	if requests.Load() != 2 {
		t.Errorf("Expected 2 requests, got %d", requests.Load())
	}
}

func TestHTTPBackend_ClientErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := transcriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	})

	b := NewHTTPBackend(HTTPConfig{URL: srv.URL}, &toneSource{pcm: speechPCM(400)}, testFormat, nil, nil, fastRetry())
	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}

	_, err = Collect(context.Background(), stream)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected a 401 error, got %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", requests.Load())
	}
}

func TestHTTPBackend_OpenCircuitFailsFast(t *testing.T) {
	srv := transcriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})

	breaker := resilience.NewCircuitBreaker("test_api", 1, time.Hour)
	retry := fastRetry()
	retry.MaxAttempts = 1
	b := NewHTTPBackend(HTTPConfig{URL: srv.URL}, &toneSource{pcm: speechPCM(400)}, testFormat, nil, breaker, retry)

	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}
	if _, err := Collect(context.Background(), stream); err == nil {
		t.Fatal("Expected the first upload to fail")
	}

	if _, err := b.StreamTranscripts(context.Background(), "en-US"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen once the breaker tripped, got %v", err)
	}
}

func TestHTTPBackend_SilenceSkipsUpload(t *testing.T) {
	var requests atomic.Int32
	srv := transcriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})

	b := NewHTTPBackend(HTTPConfig{URL: srv.URL}, &toneSource{pcm: silencePCM(400)}, testFormat, testVAD(), nil, fastRetry())
	stream, err := b.StreamTranscripts(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("StreamTranscripts failed: %v", err)
	}

	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no transcripts, got %+v", got)
	}
	if requests.Load() != 0 {
		t.Errorf("Expected no upload, got %d requests", requests.Load())
	}
}
