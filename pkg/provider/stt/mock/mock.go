// Package mock provides a test double for the stt.Provider interface.
//
// Responses are served from the Responses queue first, then from Text/Err.
// Set TranscribeFunc to decide per call (e.g. by inspecting the audio file).
//
// Example:
//
//	p := &mock.Provider{Responses: []mock.Response{{Text: "hello"}, {Text: ""}}}
//	text, err := p.Transcribe(ctx, "seg0.wav", "ko")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speechscore/pkg/provider/stt"
)

// Response is one scripted Transcribe result.
type Response struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Ctx       context.Context
	AudioPath string
	Language  string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order, one per call, until exhausted.
	Responses []Response

	// Text and Err are returned once Responses is exhausted.
	Text string
	Err  error

	// TranscribeFunc, if set, takes precedence over every other field.
	TranscribeFunc func(ctx context.Context, audioPath, language string) (string, error)

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, AudioPath: audioPath, Language: language})
	fn := p.TranscribeFunc
	var resp Response
	switch {
	case fn != nil:
	case len(p.Responses) > 0:
		resp = p.Responses[0]
		p.Responses = p.Responses[1:]
	default:
		resp = Response{Text: p.Text, Err: p.Err}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audioPath, language)
	}
	return resp.Text, resp.Err
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

var _ stt.Provider = (*Provider)(nil)
