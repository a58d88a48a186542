// Package mock provides a test double for the tts.Provider interface.
//
// On success the mock writes a silent WAV file to the requested path whose
// length is Seconds (default 1s) at SampleRate (default 24 kHz), so callers
// can load and measure the output like real synthesized speech.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speechscore/pkg/audio"
	"github.com/MrWong99/speechscore/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	Ctx     context.Context
	Req     tts.Request
	OutPath string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Synthesize call and no file is
	// written.
	Err error

	// Seconds and SampleRate describe the generated file.
	Seconds    float64
	SampleRate int

	// Samples, if non-nil, is written instead of silence.
	Samples []int

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and writes a WAV file to outPath.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request, outPath string) error {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req, OutPath: outPath})
	err := p.Err
	sr := p.SampleRate
	secs := p.Seconds
	samples := p.Samples
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if sr <= 0 {
		sr = 24000
	}
	if secs <= 0 {
		secs = 1
	}
	data := samples
	if data == nil {
		data = make([]int, int(secs*float64(sr)))
	}
	if err := audio.NewAsset(sr, 1, 16, append([]int(nil), data...)).Save(outPath); err != nil {
		return tts.Local("save wav", err)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

var _ tts.Provider = (*Provider)(nil)
