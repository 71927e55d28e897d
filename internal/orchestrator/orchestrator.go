package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/stt"
)

// Orchestrator runs push-to-talk cycles: Start opens a backend stream and
// consumes it in the background, Stop ends the cycle and returns the best
// text it heard. One Orchestrator serves every cycle for the life of the
// process; only one cycle runs at a time.
type Orchestrator struct {
	mu    sync.Mutex
	state State

	// generation is bumped by every Start. Consumer writes tagged with an
	// older generation are dropped.
	generation uint64

	// transient cycle state, reset together at Start and when Stop delivers
	latestText    string
	finalText     string
	hasFinal      bool
	completionErr error
	cycle         *cycle

	logger zerolog.Logger
}

// cycle is the handle to one Start..Stop interaction.
type cycle struct {
	generation uint64
	backend    string
	stream     *stt.Stream
	cancel     context.CancelFunc
	done       chan struct{} // closed when the consumer returns
	started    time.Time
	logger     zerolog.Logger
}

// New creates an idle orchestrator
func New() *Orchestrator {
	return &Orchestrator{
		state:  Idle,
		logger: observability.WithComponent("orchestrator"),
	}
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Generation returns the generation of the most recent cycle
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Start begins a cycle on backend. It blocks while the backend sets up and
// fails with ErrAlreadyRunning unless the orchestrator is idle. ctx bounds
// setup only; the cycle itself runs until Stop.
func (o *Orchestrator) Start(ctx context.Context, backend stt.Backend, locale string) error {
	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}

	o.generation++
	o.resetLocked()

	sessionID := observability.NewCorrelationID()
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &cycle{
		generation: o.generation,
		backend:    backend.Name(),
		cancel:     cancel,
		done:       make(chan struct{}),
		started:    time.Now(),
		logger: observability.WithCorrelationID(o.logger, sessionID).
			With().
			Str("backend", backend.Name()).
			Uint64("generation", o.generation).
			Logger(),
	}
	o.cycle = c
	o.state = Starting
	o.mu.Unlock()

	// abandon setup if the caller gives up on it
	stopSetupWatch := context.AfterFunc(ctx, cancel)
	stream, err := backend.StreamTranscripts(cycleCtx, locale)
	stopSetupWatch()

	if err == nil && cycleCtx.Err() != nil {
		stream.Cancel()
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		o.mu.Lock()
		if o.cycle == c {
			o.resetLocked()
			o.state = Idle
		}
		o.mu.Unlock()
		c.logger.Warn().Err(err).Msg("Backend failed to start")
		return fmt.Errorf("start %s: %w", c.backend, err)
	}

	o.mu.Lock()
	c.stream = stream
	o.state = Active
	o.mu.Unlock()

	observability.RecordCycleStart(c.backend)
	c.logger.Info().Str("locale", locale).Msg("Cycle started")

	go o.consume(cycleCtx, c)
	return nil
}

// consume drains the cycle's stream, recording each transcript and the
// completion. A final transcript ends the cycle right away.
func (o *Orchestrator) consume(ctx context.Context, c *cycle) {
	defer close(c.done)

	for t, err := range c.stream.Transcripts(ctx) {
		if err != nil {
			o.recordCompletion(c.generation, err)
			return
		}
		o.recordTranscript(c.generation, t)
		if t.IsFinal {
			break
		}
	}
	o.recordCompletion(c.generation, nil)
}

// currentLocked reports whether gen is the live cycle. o.mu must be held.
func (o *Orchestrator) currentLocked(gen uint64) bool {
	return o.cycle != nil && o.cycle.generation == gen
}

func (o *Orchestrator) recordTranscript(gen uint64, t stt.Transcript) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.currentLocked(gen) {
		observability.RecordStaleEvent("transcript")
		return
	}
	o.latestText = t.Text
	if t.IsFinal {
		o.finalText = t.Text
		o.hasFinal = true
	}
	observability.RecordTranscript(o.cycle.backend, t.IsFinal)
}

func (o *Orchestrator) recordCompletion(gen uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.currentLocked(gen) {
		observability.RecordStaleEvent("completion")
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Debug().
				Err(err).
				Uint64("generation", gen).
				Msg("Discarding backend error from a resolved cycle")
		}
		return
	}
	o.completionErr = err
	if err != nil {
		observability.RecordStreamError(o.cycle.backend)
		o.cycle.logger.Debug().Err(err).Msg("Stream ended with error")
	}
}

// Stop ends the active cycle and returns its best text. It cancels the
// stream, then waits up to timeout (or until ctx ends) for the consumer to
// finish; running out of time is not an error, it just settles for the text
// recorded so far.
func (o *Orchestrator) Stop(ctx context.Context, timeout time.Duration) (string, error) {
	o.mu.Lock()
	if o.state != Active || o.cycle == nil {
		o.mu.Unlock()
		return "", ErrNotRunning
	}
	c := o.cycle
	o.state = Stopping
	o.mu.Unlock()

	c.stream.Cancel()

	waitStart := time.Now()
	timedOut := !waitForConsumer(ctx, c.done, timeout)
	waited := time.Since(waitStart)
	observability.RecordStopWait(waited, timedOut)

	o.mu.Lock()
	text, err := o.outcomeLocked()
	o.resetLocked()
	o.state = Idle
	o.mu.Unlock()

	// the consumer may still be blocked on a backend that never finished
	c.cancel()

	outcome := observability.OutcomeText
	switch {
	case errors.Is(err, ErrNoResult):
		outcome = observability.OutcomeNoResult
	case err != nil:
		outcome = observability.OutcomeError
	}
	observability.RecordCycleOutcome(c.backend, outcome, c.started)

	c.logger.Info().
		Str("outcome", outcome).
		Bool("timed_out", timedOut).
		Dur("wait", waited).
		Int("chars", len(text)).
		Msg("Cycle stopped")

	return text, err
}

// waitForConsumer reports whether done closed before timeout or ctx ended.
func waitForConsumer(ctx context.Context, done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// outcomeLocked resolves the cycle's result. o.mu must be held.
func (o *Orchestrator) outcomeLocked() (string, error) {
	if o.completionErr != nil {
		best := strings.TrimSpace(o.finalText)
		if best == "" {
			best = strings.TrimSpace(o.latestText)
		}
		if best == "" {
			return "", o.completionErr
		}
		return best, nil
	}

	text := o.latestText
	if o.hasFinal {
		text = o.finalText
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoResult
	}
	return text, nil
}

// resetLocked clears the transient cycle state. o.mu must be held.
func (o *Orchestrator) resetLocked() {
	o.latestText = ""
	o.finalText = ""
	o.hasFinal = false
	o.completionErr = nil
	o.cycle = nil
}
