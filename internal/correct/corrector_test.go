package correct_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/speechscore/internal/correct"
	"github.com/MrWong99/speechscore/pkg/provider/llm"
	"github.com/MrWong99/speechscore/pkg/provider/llm/mock"
)

func TestCorrect_SendsPromptAndReturnsText(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  안녕하세요. 오늘 발표를 시작하겠습니다.  "}}
	c := correct.New(m)

	got, err := c.Correct(context.Background(), "안녕하세요 오늘 발표 시작 하겠 습니다")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if got != "안녕하세요. 오늘 발표를 시작하겠습니다." {
		t.Errorf("got %q", got)
	}

	if m.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", m.Calls())
	}
	req := m.CompleteCalls[0].Req
	if req.MaxTokens != correct.DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, correct.DefaultMaxTokens)
	}
	if req.SystemPrompt == "" {
		t.Error("SystemPrompt is empty")
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v, want one user message", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "안녕하세요 오늘 발표 시작 하겠 습니다") {
		t.Error("user message does not carry the transcript")
	}
}

func TestCorrect_StripsFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, content, want string
	}{
		{"plain", "교정된 문장", "교정된 문장"},
		{"fence", "```\n교정된 문장\n```", "교정된 문장"},
		{"fence with info", "```text\n교정된 문장\n```", "교정된 문장"},
		{"inline fence", "```교정된 문장```", "교정된 문장"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: tt.content}}
			got, err := correct.New(m).Correct(context.Background(), "x")
			if err != nil {
				t.Fatalf("Correct: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCorrect_Empty(t *testing.T) {
	t.Parallel()

	for _, resp := range []*llm.CompletionResponse{nil, {Content: "   "}, {Content: "```\n```"}} {
		m := &mock.Provider{CompleteResponse: resp}
		if _, err := correct.New(m).Correct(context.Background(), "x"); !errors.Is(err, correct.ErrEmptyCorrection) {
			t.Errorf("resp %+v: err = %v, want ErrEmptyCorrection", resp, err)
		}
	}
}

func TestCorrect_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	m := &mock.Provider{CompleteErr: boom}
	_, err := correct.New(m).Correct(context.Background(), "x")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	c := correct.New(m,
		correct.WithTemperature(0.2),
		correct.WithMaxTokens(128),
		correct.WithPrompts("fix grammar", "Text: %s"),
	)
	if _, err := c.Correct(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	req := m.CompleteCalls[0].Req
	if req.Temperature != 0.2 || req.MaxTokens != 128 || req.SystemPrompt != "fix grammar" {
		t.Errorf("req = %+v", req)
	}
	if req.Messages[0].Content != "Text: hello" {
		t.Errorf("user message = %q", req.Messages[0].Content)
	}
}

func TestCorrect_Truncated(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content:      "안녕하세요. 오늘은 분기 실적을",
		FinishReason: llm.FinishLength,
	}}
	_, err := correct.New(m, correct.WithMaxTokens(16)).Correct(context.Background(), "안녕하세요 오늘은 분기 실적을 말씀 드리겠습니다")
	if !errors.Is(err, correct.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if !strings.Contains(err.Error(), "16") {
		t.Errorf("err = %v, want the token limit named", err)
	}
}
