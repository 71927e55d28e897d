package stt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type stepKind int

const (
	stepEmit stepKind = iota
	stepPause
	stepAwaitRelease
	stepFail
	stepHang
)

// Step is one instruction in a ScriptedBackend script.
type Step struct {
	kind       stepKind
	transcript Transcript
	delay      time.Duration
	err        error
}

// Partial emits a non-final transcript.
func Partial(text string) Step {
	return Step{kind: stepEmit, transcript: Transcript{Text: text}}
}

// Final emits a final transcript.
func Final(text string) Step {
	return Step{kind: stepEmit, transcript: Transcript{Text: text, IsFinal: true}}
}

// Pause waits before the next step.
func Pause(d time.Duration) Step {
	return Step{kind: stepPause, delay: d}
}

// AwaitRelease blocks until the stream is cancelled, like a recognizer that
// only finalizes once the user lets go of the key.
func AwaitRelease() Step {
	return Step{kind: stepAwaitRelease}
}

// Fail ends the stream with err.
func Fail(err error) Step {
	return Step{kind: stepFail, err: err}
}

// Hang never completes on its own, even after Cancel. Only the consumer
// leaving (or its context ending) stops it.
func Hang() Step {
	return Step{kind: stepHang}
}

// ScriptedBackend replays a fixed script. It backs the "scripted" mode and
// the orchestrator tests.
type ScriptedBackend struct {
	name     string
	caps     Capabilities
	steps    []Step
	startErr error

	attempts atomic.Int32
	releases atomic.Int32
}

// NewScriptedBackend creates a backend that plays steps for every attempt.
func NewScriptedBackend(name string, steps ...Step) *ScriptedBackend {
	if name == "" {
		name = "scripted"
	}
	return &ScriptedBackend{
		name:  name,
		caps:  Capabilities{Streaming: true, OnDevice: Yes},
		steps: steps,
	}
}

// WithStartError makes every attempt fail before a stream exists.
func (b *ScriptedBackend) WithStartError(err error) *ScriptedBackend {
	b.startErr = err
	return b
}

// WithCapabilities overrides the reported capabilities.
func (b *ScriptedBackend) WithCapabilities(caps Capabilities) *ScriptedBackend {
	b.caps = caps
	return b
}

func (b *ScriptedBackend) Name() string { return b.name }

func (b *ScriptedBackend) Capabilities() Capabilities { return b.caps }

// Attempts is the number of StreamTranscripts calls that returned a stream.
func (b *ScriptedBackend) Attempts() int { return int(b.attempts.Load()) }

// ReleaseCount is the number of times any stream's release hook ran.
func (b *ScriptedBackend) ReleaseCount() int { return int(b.releases.Load()) }

func (b *ScriptedBackend) StreamTranscripts(ctx context.Context, locale string) (*Stream, error) {
	if b.startErr != nil {
		return nil, b.startErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.attempts.Add(1)

	released := make(chan struct{})
	stream, emit := NewStream(ctx, 16, func() {
		b.releases.Add(1)
		close(released)
	})

	go b.play(emit, released)
	return stream, nil
}

func (b *ScriptedBackend) play(emit *Emitter, released <-chan struct{}) {
	ctx := emit.Context()
	for _, step := range b.steps {
		switch step.kind {
		case stepEmit:
			if !emit.Emit(step.transcript) {
				emit.Finish(ctx.Err())
				return
			}
		case stepPause:
			timer := time.NewTimer(step.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				emit.Finish(ctx.Err())
				return
			}
		case stepAwaitRelease:
			select {
			case <-released:
			case <-ctx.Done():
				emit.Finish(ctx.Err())
				return
			}
		case stepFail:
			emit.Finish(step.err)
			return
		case stepHang:
			<-ctx.Done()
			log.Debug().Str("backend", b.name).Msg("Scripted backend stopped hanging")
			emit.Finish(ctx.Err())
			return
		}
	}
	emit.Finish(nil)
}
