package stt

import (
	"context"
	"errors"

	"golang.org/x/text/language"
)

var (
	// ErrStreamConsumed is yielded when a stream's transcripts are ranged over a second time.
	ErrStreamConsumed = errors.New("stt: transcript stream already consumed")

	// ErrUnknownBackend is returned by NewBackend for an unrecognised backend name.
	ErrUnknownBackend = errors.New("stt: unknown backend")
)

// Transcript is one recognition update. Each transcript supersedes the
// previous one as the current best text for the utterance.
type Transcript struct {
	// Text is the full best guess so far, not a delta
	Text string

	// IsFinal marks the last transcript the backend intends to emit
	IsFinal bool
}

// Tristate is a yes/no answer that may also be unknown.
type Tristate int

const (
	Unknown Tristate = iota
	Yes
	No
)

func (t Tristate) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// Capabilities describes a backend. It is static and has no side effects.
type Capabilities struct {
	// Streaming is true when partial transcripts arrive while the user speaks
	Streaming bool

	// OnDevice reports whether audio stays on this machine
	OnDevice Tristate

	// Locales lists supported BCP 47 tags. Empty means not declared.
	Locales []string
}

// SupportsLocale reports whether locale matches one of the declared locales.
// Backends that declare none are assumed to accept anything.
func (c Capabilities) SupportsLocale(locale string) bool {
	if len(c.Locales) == 0 {
		return true
	}
	want, err := language.Parse(locale)
	if err != nil {
		return false
	}

	supported := make([]language.Tag, 0, len(c.Locales))
	for _, l := range c.Locales {
		tag, err := language.Parse(l)
		if err != nil {
			continue
		}
		supported = append(supported, tag)
	}
	if len(supported) == 0 {
		return false
	}

	_, _, confidence := language.NewMatcher(supported).Match(want)
	return confidence >= language.High
}

// Backend is a speech-to-text engine that turns one recording into a stream
// of transcripts.
type Backend interface {
	// Name identifies the backend in logs and metrics
	Name() string

	// Capabilities is side-effect free
	Capabilities() Capabilities

	// StreamTranscripts begins one recognition attempt. Setup failures are
	// returned here rather than as stream events. The attempt's resources are
	// released exactly once: when the consumer abandons the stream, when ctx
	// is cancelled, when Stream.Cancel is called, or when the stream completes.
	StreamTranscripts(ctx context.Context, locale string) (*Stream, error)
}

// baseLanguage reduces a BCP 47 locale to its base language code, which is
// what most engines take ("en-US" -> "en"). Unparseable input is passed through.
func baseLanguage(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return locale
	}
	base, _ := tag.Base()
	return base.String()
}
