package stt

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// Stream is one recognition attempt's transcripts plus its cancellation handle.
//
// The transcript sequence is lazy and can be consumed once. Whatever ends the
// attempt first (the consumer breaking out of the range loop, the creating
// context ending, Cancel, or the backend finishing) triggers the backend's
// release hook, and the hook never runs twice.
type Stream struct {
	events chan Transcript

	// ctx ends when the consumer goes away or the backend finishes
	ctx       context.Context
	cancelCtx context.CancelFunc
	stopWatch func() bool

	release     func()
	releaseOnce sync.Once

	sendMu   sync.Mutex
	finished bool
	err      error

	consumed atomic.Bool
}

// Emitter is the backend's half of a Stream.
type Emitter struct {
	s *Stream
}

// NewStream creates a stream whose release hook fires at most once. buffer
// bounds how many transcripts may queue ahead of the consumer. release must
// not block and must not call Cancel.
func NewStream(ctx context.Context, buffer int, release func()) (*Stream, *Emitter) {
	if buffer < 0 {
		buffer = 0
	}
	s := &Stream{
		events:  make(chan Transcript, buffer),
		release: release,
	}
	s.ctx, s.cancelCtx = context.WithCancel(ctx)
	s.stopWatch = context.AfterFunc(ctx, s.fireRelease)
	return s, &Emitter{s: s}
}

// Transcripts returns the transcript sequence. A non-nil error is always the
// last element: the backend's failure, ctx.Err() if ctx ended first, or
// ErrStreamConsumed on a second call. Breaking out of the loop abandons the
// stream and releases the backend.
func (s *Stream) Transcripts(ctx context.Context) iter.Seq2[Transcript, error] {
	return func(yield func(Transcript, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(Transcript{}, ErrStreamConsumed)
			return
		}
		defer s.abandon()

		for {
			select {
			case t, ok := <-s.events:
				if !ok {
					if s.err != nil {
						yield(Transcript{}, s.err)
					}
					return
				}
				if !yield(t, nil) {
					return
				}
			case <-ctx.Done():
				yield(Transcript{}, ctx.Err())
				return
			}
		}
	}
}

// Cancel asks the backend to stop listening. It is idempotent. The sequence
// keeps running so a final transcript produced while winding down can still
// be read.
func (s *Stream) Cancel() {
	s.fireRelease()
}

func (s *Stream) fireRelease() {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

func (s *Stream) abandon() {
	s.cancelCtx()
	s.stopWatch()
	s.fireRelease()
}

// Context ends when the consumer abandons the stream, the stream's context is
// cancelled, or Finish is called. Backends tie their network and process work
// to it.
func (e *Emitter) Context() context.Context {
	return e.s.ctx
}

// Emit delivers a transcript, blocking while the consumer's buffer is full.
// It reports false once the stream is finished or nobody is listening.
func (e *Emitter) Emit(t Transcript) bool {
	s := e.s
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.finished || s.ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- t:
		return true
	default:
	}
	select {
	case s.events <- t:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Finish ends the sequence, with err as its terminal error if non-nil, and
// releases the backend. Later calls are ignored.
func (e *Emitter) Finish(err error) {
	s := e.s
	s.sendMu.Lock()
	if s.finished {
		s.sendMu.Unlock()
		return
	}
	s.finished = true
	s.err = err
	close(s.events)
	s.sendMu.Unlock()

	s.cancelCtx()
	s.stopWatch()
	s.fireRelease()
}

// Collect drains a stream and returns every transcript it produced.
func Collect(ctx context.Context, s *Stream) ([]Transcript, error) {
	var out []Transcript
	for t, err := range s.Transcripts(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}
