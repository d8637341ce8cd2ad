// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the summarization pipeline sends
// correct CompletionRequests and to feed controlled responses without a live
// model runtime. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponses: []*llm.CompletionResponse{{Content: "A summary."}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/auricle-audio/auricle/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete or CompleteWithSchema.
type CompleteCall struct {
	// Ctx is the context passed to the call.
	Ctx context.Context
	// Req is the CompletionRequest passed to the call.
	Req llm.CompletionRequest
	// Schema is non-nil when the call came through CompleteWithSchema.
	Schema []byte
}

// Provider is a mock implementation of llm.Provider, llm.SchemaCompleter and
// llm.ModelLister. Zero values for response fields cause methods to return
// zero values and nil errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// CompleteResponses are consumed front to back by successive Complete and
	// CompleteWithSchema calls. When exhausted, CompleteResponse is returned.
	CompleteResponses []*llm.CompletionResponse

	// CompleteResponse is the fallback response once CompleteResponses is
	// exhausted. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErrs are consumed front to back alongside CompleteResponses; a
	// nil entry means that call succeeds. When exhausted, CompleteErr is used.
	CompleteErrs []error

	// CompleteErr, if non-nil, is returned once CompleteErrs is exhausted.
	CompleteErr error

	// Gate, if non-nil, blocks every Complete and CompleteWithSchema call
	// until a value is received or the call's context is cancelled. Used to
	// exercise queue backpressure and drain timeouts.
	Gate chan struct{}

	// ModelList is returned by Models.
	ModelList []string

	// ModelsErr, if non-nil, is returned as the error from Models.
	ModelsErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every Complete and CompleteWithSchema invocation
	// in order.
	CompleteCalls []CompleteCall

	// ModelsCallCount is the number of Models invocations.
	ModelsCallCount int
}

// Name returns ProviderName, defaulting to "mock".
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return p.complete(ctx, req, nil)
}

// CompleteWithSchema records the call, including the schema, and returns the
// next scripted response.
func (p *Provider) CompleteWithSchema(ctx context.Context, req llm.CompletionRequest, schema []byte) (*llm.CompletionResponse, error) {
	return p.complete(ctx, req, schema)
}

func (p *Provider) complete(ctx context.Context, req llm.CompletionRequest, schema []byte) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	gate := p.Gate
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req, Schema: schema})

	var (
		resp *llm.CompletionResponse
		err  error
	)
	if len(p.CompleteResponses) > 0 {
		resp = p.CompleteResponses[0]
		p.CompleteResponses = p.CompleteResponses[1:]
	} else {
		resp = p.CompleteResponse
	}
	if len(p.CompleteErrs) > 0 {
		err = p.CompleteErrs[0]
		p.CompleteErrs = p.CompleteErrs[1:]
	} else {
		err = p.CompleteErr
	}
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Models records the call and returns ModelList, ModelsErr.
func (p *Provider) Models(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModelsCallCount++
	if p.ModelsErr != nil {
		return nil, p.ModelsErr
	}
	return p.ModelList, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.ModelsCallCount = 0
}

// Ensure Provider implements the core and capability interfaces at compile time.
var (
	_ llm.Provider        = (*Provider)(nil)
	_ llm.SchemaCompleter = (*Provider)(nil)
	_ llm.ModelLister     = (*Provider)(nil)
)
