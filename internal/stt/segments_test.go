package stt

import (
	"context"
	"errors"
	"sync"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

func deepgramResult(text string, final bool) *msginterfaces.MessageResponse {
	return &msginterfaces.MessageResponse{
		IsFinal: final,
		Channel: msginterfaces.Channel{
			Alternatives: []msginterfaces.Alternative{{Transcript: text}},
		},
	}
}

func TestSegmentText(t *testing.T) {
	var s segmentText

	steps := []struct {
		text     string
		final    bool
		expected string
	}{
		{"the", false, "the"},
		{"the quick", false, "the quick"},
		{"the quick brown", true, "the quick brown"},
		{"fox", false, "the quick brown fox"},
		{"", false, "the quick brown"},
		{"fox jumps", true, "the quick brown fox jumps"},
		{"  ", true, "the quick brown fox jumps"},
	}
	for i, step := range steps {
		if got := s.update(step.text, step.final); got != step.expected {
			t.Errorf("Step %d: expected '%s', got '%s'", i, step.expected, got)
		}
	}
}

func TestDeepgramHandler_FinishEmitsAccumulatedText(t *testing.T) {
	stream, emit := NewStream(context.Background(), 4, nil)
	h := &deepgramHandler{}
	h.attach(emit)
	h.text.update("hello", true)
	h.text.update("world", false)

	h.Close(nil)
	h.finish(errors.New("ignored after close"))

	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hello world" || !got[0].IsFinal {
		t.Errorf("Expected final 'hello world', got %+v", got)
	}
}

func TestDeepgramHandler_ErrorEndsStream(t *testing.T) {
	stream, emit := NewStream(context.Background(), 4, nil)
	h := &deepgramHandler{}
	h.attach(emit)
	h.text.update("partial", false)

	h.finish(errors.New("connection lost"))

	got, err := Collect(context.Background(), stream)
	if err == nil {
		t.Error("Expected the stream to fail")
	}
	if len(got) != 0 {
		t.Errorf("Expected no final transcript on error, got %+v", got)
	}
}

func TestDeepgramHandler_FinalIsAlwaysLast(t *testing.T) {
	for round := 0; round < 50; round++ {
		stream, emit := NewStream(context.Background(), 0, nil)
		h := &deepgramHandler{}
		h.attach(emit)

		var got []Transcript
		var collectErr error
		collected := make(chan struct{})
		go func() {
			defer close(collected)
			got, collectErr = Collect(context.Background(), stream)
		}()

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					h.Message(deepgramResult("word", false))
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.finish(nil)
		}()
		wg.Wait()
		<-collected

		if collectErr != nil {
			t.Fatalf("Unexpected error: %v", collectErr)
		}
		for i, tr := range got {
			if tr.IsFinal && i != len(got)-1 {
				t.Fatalf("Round %d: expected the final to be last, got %d transcripts after it", round, len(got)-1-i)
			}
		}
	}
}

func TestDeepgramHandler_MessageAfterCloseIgnored(t *testing.T) {
	stream, emit := NewStream(context.Background(), 4, nil)
	h := &deepgramHandler{}
	h.attach(emit)

	h.Message(deepgramResult("hello", true))
	h.Close(nil)
	h.Message(deepgramResult("too late", false))

	got, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].Text != "hello" || !got[1].IsFinal {
		t.Errorf("Expected partial then final 'hello', got %+v", got)
	}
}

func TestDeepgramHandler_NilErrorResponse(t *testing.T) {
	stream, emit := NewStream(context.Background(), 4, nil)
	h := &deepgramHandler{}
	h.attach(emit)

	if err := h.Error(nil); err != nil {
		t.Errorf("Expected nil from the callback, got %v", err)
	}

	_, err := Collect(context.Background(), stream)
	if err == nil {
		t.Error("Expected the stream to fail on a nil error response")
	}
}
