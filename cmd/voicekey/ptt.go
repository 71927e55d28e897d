package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/orchestrator"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/stt"
)

// pushToTalk maps terminal input onto orchestrator cycles. Transcribed text
// goes to out; prompts and recoverable errors go to status.
type pushToTalk struct {
	orch        *orchestrator.Orchestrator
	backend     stt.Backend
	locale      string
	stopTimeout time.Duration

	out    io.Writer
	status io.Writer
	logger zerolog.Logger
}

// run reads commands from in until it sees "q", in reaches EOF, or ctx ends.
// An empty line toggles between listening and stopping. A cycle still
// running on exit is stopped and its text delivered.
func (p *pushToTalk) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(p.status, "Press Enter to start listening, Enter again to stop, q to quit.")
	for {
		select {
		case <-ctx.Done():
			p.finish()
			return nil
		case line, ok := <-lines:
			if !ok {
				p.finish()
				return nil
			}
			switch strings.ToLower(line) {
			case "":
				p.toggle(ctx)
			case "q", "quit":
				p.finish()
				return nil
			default:
				fmt.Fprintf(p.status, "Unknown command %q\n", line)
			}
		}
	}
}

func (p *pushToTalk) toggle(ctx context.Context) {
	if p.orch.State() == orchestrator.Idle {
		if err := p.orch.Start(ctx, p.backend, p.locale); err != nil {
			p.report(err)
			return
		}
		fmt.Fprintln(p.status, "Listening... press Enter to stop.")
		return
	}
	p.stop(ctx)
}

// finish stops a cycle left running when the loop exits.
func (p *pushToTalk) finish() {
	if p.orch.State() != orchestrator.Active {
		return
	}
	// the loop's ctx may already be done; give the backend its usual grace
	p.stop(context.Background())
}

func (p *pushToTalk) stop(ctx context.Context) {
	text, err := p.orch.Stop(ctx, p.stopTimeout)
	if err != nil {
		p.report(err)
		return
	}
	fmt.Fprintln(p.out, text)
}

// report shows an error as something the user can retry.
func (p *pushToTalk) report(err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNoResult):
		fmt.Fprintln(p.status, "Nothing captured, try again.")
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		fmt.Fprintln(p.status, "Still finishing the last recording, try again.")
	case errors.Is(err, orchestrator.ErrNotRunning):
		fmt.Fprintln(p.status, "Not listening.")
	default:
		p.logger.Error().Err(err).Msg("Transcription failed")
		fmt.Fprintf(p.status, "Transcription failed (%v), try again.\n", err)
	}
}
