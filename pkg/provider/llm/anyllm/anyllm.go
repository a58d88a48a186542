// Package anyllm reaches every LLM backend other than the native OpenAI
// adapter through github.com/mozilla-ai/any-llm-go, so grammar correction and
// question answering can run on Anthropic, Gemini, a local Ollama and others.
//
//	p, err := anyllm.New("anthropic", "", anyllmlib.WithAPIKey(key)) // default model
//	p, err := anyllm.NewOllama("qwen2.5:7b")
//
// Without an API key option each backend reads its usual environment
// variable (ANTHROPIC_API_KEY, GEMINI_API_KEY, ...).
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/speechscore/pkg/provider/llm"
)

// ErrEmptyChoices is returned when a backend answers without any choice.
var ErrEmptyChoices = errors.New("anyllm: empty choices in response")

// backend is one any-llm-go provider and the model used when none is
// configured. An empty defaultModel means the model must be configured.
type backend struct {
	name         string
	defaultModel string
	open         func(...anyllmlib.Option) (anyllmlib.Provider, error)
}

// Local servers (llama.cpp, llamafile) serve whichever model they were
// started with, so they get no default.
var backends = []backend{
	{"openai", "gpt-4o-mini", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) }},
	{"anthropic", "claude-3-5-haiku-latest", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) }},
	{"gemini", "gemini-2.0-flash", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) }},
	{"ollama", "qwen2.5:7b", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) }},
	{"deepseek", "deepseek-chat", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) }},
	{"mistral", "mistral-small-latest", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) }},
	{"groq", "llama-3.3-70b-versatile", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) }},
	{"llamacpp", "", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) }},
	{"llamafile", "", func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) }},
}

func lookup(name string) (backend, bool) {
	name = strings.ToLower(name)
	for _, b := range backends {
		if b.name == name {
			return b, true
		}
	}
	return backend{}, false
}

// Backends lists the backend names accepted by [New], in a stable order.
func Backends() []string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.name
	}
	return names
}

// DefaultModel returns the model [New] uses for name when none is given, or
// "" when the backend has no default.
func DefaultModel(name string) string {
	b, _ := lookup(name)
	return b.defaultModel
}

// Provider implements llm.Provider on an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New opens the backend called name. An empty model selects
// [DefaultModel]; backends without a default require one.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	b, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q; supported: %s", name, strings.Join(Backends(), ", "))
	}
	if model == "" {
		model = b.defaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: %s: model must be configured", b.name)
	}
	p, err := b.open(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: open %s: %w", b.name, err)
	}
	return &Provider{backend: p, name: b.name, model: model}, nil
}

// NewOllama opens a local Ollama backend. Without options it connects to
// http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// Model returns the model requests are sent to.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider. The system prompt travels as a leading
// system message, which every backend translates to its own field.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, completionParams(p.model, req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyChoices
	}

	choice := resp.Choices[0]
	out := &llm.CompletionResponse{
		Content:      choice.Message.ContentString(),
		FinishReason: string(choice.FinishReason),
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func completionParams(model string, req llm.CompletionRequest) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: model, Messages: messages}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}
