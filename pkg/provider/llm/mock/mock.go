// Package mock provides a test double for the llm.Provider interface.
//
// A fixed reply:
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "교정된 문장."}}
//
// A reply that depends on the prompt, e.g. when one provider serves both
// grammar correction and question answering:
//
//	p := &mock.Provider{Respond: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
//	    if strings.Contains(req.SystemPrompt, "교정") {
//	        return &llm.CompletionResponse{Content: "교정된 문장."}, nil
//	    }
//	    return &llm.CompletionResponse{Content: "답변."}, nil
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speechscore/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Respond, when set, wins
// over CompleteResponse and CompleteErr. A nil CompleteResponse with a nil
// CompleteErr returns (nil, nil).
type Provider struct {
	mu sync.Mutex

	// Respond computes the reply from the request.
	Respond func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteResponse is returned by Complete.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the configured reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	respond, resp, err := p.Respond, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return resp, err
}

// Calls returns the number of Complete invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastRequest returns the most recent request, or false before any call.
func (p *Provider) LastRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req, true
}

var _ llm.Provider = (*Provider)(nil)
