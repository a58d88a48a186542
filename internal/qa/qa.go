// Package qa answers free-form questions about a presentation from its
// transcript.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/pkg/provider/llm"
)

// DefaultMaxTokens caps the answer length.
const DefaultMaxTokens = 1024

const systemPrompt = "You are an assistant that answers questions about a recorded presentation. " +
	"Answer kindly and only from the transcript you are given. Reply in the language of the question."

// ErrEmptyAnswer is returned when the model replies with no text.
var ErrEmptyAnswer = errors.New("qa: empty answer")

// Answerer asks an [llm.Provider] questions about a transcript.
type Answerer struct {
	llm       llm.Provider
	maxTokens int
}

// New returns an Answerer backed by provider.
func New(provider llm.Provider) *Answerer {
	return &Answerer{llm: provider, maxTokens: DefaultMaxTokens}
}

// Ask returns the model's answer to question given transcript. A blank
// question is an input error; provider failures are upstream errors.
func (a *Answerer) Ask(ctx context.Context, transcript, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", apperr.Input("ask", "question is required")
	}

	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		MaxTokens:    a.maxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Transcript: " + transcript},
			{Role: llm.RoleUser, Content: "Question: " + question},
		},
	})
	if err != nil {
		return "", apperr.Upstream("llm", fmt.Errorf("qa: complete: %w", err))
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", apperr.Upstream("llm", ErrEmptyAnswer)
	}
	return strings.TrimSpace(resp.Content), nil
}
