// Package tts defines the Provider interface for Text-to-Speech backends.
//
// speechscore synthesizes the reference text at the presenter's pace and
// compares the result with the recording, so a provider takes a speed
// multiplier and writes a complete WAV file. Implementations must be safe for
// concurrent use and must not retry.
package tts

import (
	"context"
	"fmt"
)

// Speed bounds accepted by every provider.
const (
	MinSpeed = 0.5
	MaxSpeed = 4.0
)

// Request describes one synthesis.
type Request struct {
	// Text is the text to speak.
	Text string

	// Speed is the playback-rate multiplier. Providers clamp it with
	// [ClampSpeed]; zero means 1.0.
	Speed float64

	// Voice is the provider-specific voice name (e.g. "alloy"). Empty selects
	// the provider default.
	Voice string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize speaks req.Text and writes the audio to outPath as WAV,
	// replacing any existing file.
	Synthesize(ctx context.Context, req Request, outPath string) error
}

// ClampSpeed limits s to [MinSpeed, MaxSpeed]. Zero maps to 1.0.
func ClampSpeed(s float64) float64 {
	if s == 0 {
		return 1.0
	}
	return min(max(s, MinSpeed), MaxSpeed)
}

// LocalError marks a synthesis failure that happened on this machine, such as
// decoding the returned audio, writing the WAV file or joining chunk files,
// as opposed to a failure of the speech service itself.
type LocalError struct {
	Op  string
	Err error
}

// Local wraps err as a [LocalError] raised during op.
func Local(op string, err error) error {
	return &LocalError{Op: op, Err: err}
}

func (e *LocalError) Error() string { return fmt.Sprintf("tts: %s: %v", e.Op, e.Err) }

// Unwrap returns the underlying error.
func (e *LocalError) Unwrap() error { return e.Err }

// LocalFault reports true; error classification uses it to keep local
// failures apart from upstream ones.
func (e *LocalError) LocalFault() bool { return true }
