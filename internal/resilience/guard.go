package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/speechscore/pkg/provider/llm"
	"github.com/MrWong99/speechscore/pkg/provider/stt"
	"github.com/MrWong99/speechscore/pkg/provider/tts"
)

// GuardedSTT is an [stt.Provider] whose calls pass through a [CircuitBreaker].
type GuardedSTT struct {
	provider stt.Provider
	breaker  *CircuitBreaker
}

var _ stt.Provider = (*GuardedSTT)(nil)

// GuardSTT wraps p with a breaker built from cfg.
func GuardSTT(p stt.Provider, cfg CircuitBreakerConfig) *GuardedSTT {
	return &GuardedSTT{provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedSTT) Breaker() *CircuitBreaker { return g.breaker }

// Transcribe implements stt.Provider.
func (g *GuardedSTT) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	var text string
	err := g.breaker.Execute(func() error {
		var err error
		text, err = g.provider.Transcribe(ctx, audioPath, language)
		return err
	})
	if err == ErrCircuitOpen {
		return "", fmt.Errorf("%s: %w", g.breaker.Name(), err)
	}
	return text, err
}

// GuardedTTS is a [tts.Provider] whose calls pass through a [CircuitBreaker].
type GuardedTTS struct {
	provider tts.Provider
	breaker  *CircuitBreaker
}

var _ tts.Provider = (*GuardedTTS)(nil)

// GuardTTS wraps p with a breaker built from cfg.
func GuardTTS(p tts.Provider, cfg CircuitBreakerConfig) *GuardedTTS {
	return &GuardedTTS{provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedTTS) Breaker() *CircuitBreaker { return g.breaker }

// Synthesize implements tts.Provider.
func (g *GuardedTTS) Synthesize(ctx context.Context, req tts.Request, outPath string) error {
	err := g.breaker.Execute(func() error {
		return g.provider.Synthesize(ctx, req, outPath)
	})
	if err == ErrCircuitOpen {
		return fmt.Errorf("%s: %w", g.breaker.Name(), err)
	}
	return err
}

// GuardedLLM is an [llm.Provider] whose calls pass through a [CircuitBreaker].
type GuardedLLM struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

var _ llm.Provider = (*GuardedLLM)(nil)

// GuardLLM wraps p with a breaker built from cfg.
func GuardLLM(p llm.Provider, cfg CircuitBreakerConfig) *GuardedLLM {
	return &GuardedLLM{provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedLLM) Breaker() *CircuitBreaker { return g.breaker }

// Complete implements llm.Provider.
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.breaker.Execute(func() error {
		var err error
		resp, err = g.provider.Complete(ctx, req)
		return err
	})
	if err == ErrCircuitOpen {
		return nil, fmt.Errorf("%s: %w", g.breaker.Name(), err)
	}
	return resp, err
}
