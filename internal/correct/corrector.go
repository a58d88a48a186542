// Package correct implements the grammar-correction stage used when a
// presentation is scored without a script.
//
// The [Corrector] sends the raw transcript to an [llm.Provider] with a system
// prompt that asks for natural grammar fixes in the target language while
// keeping every word of the speaker's content. The returned text becomes the
// inferred reference script.
//
// Unlike a best-effort cleanup pass, Correct reports every failure to the
// caller, including an empty completion ([ErrEmptyCorrection]). Deciding
// whether to fall back to the raw transcript is the orchestrator's job.
package correct

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/speechscore/pkg/provider/llm"
)

// DefaultMaxTokens caps the completion length.
const DefaultMaxTokens = 4000

var (
	// ErrEmptyCorrection is returned when the model replies with no text.
	ErrEmptyCorrection = errors.New("correct: empty correction")

	// ErrTruncated is returned when the reply hit the token limit. A cut-off
	// correction would drop the end of the talk from the reference.
	ErrTruncated = errors.New("correct: correction truncated at token limit")
)

const defaultSystemPrompt = "너는 한국어 문법을 정확하게 교정하지만, 어떤 내용도 삭제하거나 요약하지 않는 어시스턴트야. " +
	"텍스트에 부족한 내용을 보충한다는 느낌으로 원본 텍스트보다는 늘려도 되지만 절대 줄이지 말고 자연스럽게 교정해줘."

const defaultUserTemplate = "다음 텍스트의 문법을 자연스럽게 교정하세요. 단, **어떤 단어도 삭제하거나 요약하지 말고, " +
	"부자연스러운 표현은 고쳐줘, 텍스트의 길이는 원본 텍스트보다 길어도 돼, " +
	"그리고 텍스트는 절대 문단을 나누지 말고 무조건 하나의 텍스트로 만들어줘**.:\n\n%s"

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// WithMaxTokens overrides [DefaultMaxTokens].
func WithMaxTokens(n int) Option {
	return func(c *Corrector) {
		c.maxTokens = n
	}
}

// WithPrompts replaces the system prompt and the user message template. The
// template must contain exactly one %s verb for the transcript.
func WithPrompts(system, userTemplate string) Option {
	return func(c *Corrector) {
		c.systemPrompt = system
		c.userTemplate = userTemplate
	}
}

// Corrector asks an [llm.Provider] to fix the grammar of a transcript. It is
// safe for concurrent use.
type Corrector struct {
	llm          llm.Provider
	temperature  float64
	maxTokens    int
	systemPrompt string
	userTemplate string
}

// New returns a [Corrector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:          provider,
		maxTokens:    DefaultMaxTokens,
		systemPrompt: defaultSystemPrompt,
		userTemplate: defaultUserTemplate,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct returns the grammar-corrected text as a single paragraph. Provider
// errors are returned wrapped with their cause intact.
func (c *Corrector) Correct(ctx context.Context, text string) (string, error) {
	req := llm.CompletionRequest{
		SystemPrompt: c.systemPrompt,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(c.userTemplate, text)},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("correct: complete: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyCorrection
	}
	if resp.Truncated() {
		return "", fmt.Errorf("%w (max_tokens %d)", ErrTruncated, c.maxTokens)
	}

	corrected := stripMarkdown(resp.Content)
	if corrected == "" {
		return "", ErrEmptyCorrection
	}
	return corrected, nil
}

// stripMarkdown removes an optional code fence (```text ... ```) some models
// wrap their answer in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```"); ok {
		// Drop the info string, if any, up to the first newline.
		if i := strings.IndexByte(after, '\n'); i >= 0 && !strings.ContainsAny(after[:i], " \t") {
			after = after[i+1:]
		}
		s = after
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
