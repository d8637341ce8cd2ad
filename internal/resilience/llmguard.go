package resilience

import (
	"context"

	"github.com/auricle-audio/auricle/pkg/provider/llm"
)

// GuardedLLM wraps an llm.Provider with a [Breaker] so a wedged runtime
// fails fast instead of stalling every MAP call behind its timeout.
//
// Capability preservation matters here: callers discover schema support and
// model listing by type assertion, so [GuardLLM] returns a wrapper that
// implements exactly the interfaces the inner provider does.
type GuardedLLM struct {
	inner   llm.Provider
	breaker *Breaker
}

var _ llm.Provider = (*GuardedLLM)(nil)

// GuardLLM wraps inner with breaker. A nil breaker gets default settings
// named after the provider. The returned provider implements
// llm.SchemaCompleter and llm.ModelLister only when inner does.
func GuardLLM(inner llm.Provider, breaker *Breaker) llm.Provider {
	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{Name: inner.Name()})
	}
	g := &GuardedLLM{inner: inner, breaker: breaker}

	_, schema := inner.(llm.SchemaCompleter)
	_, lister := inner.(llm.ModelLister)
	switch {
	case schema && lister:
		return &guardedFull{GuardedLLM: g}
	case schema:
		return &guardedSchema{GuardedLLM: g}
	case lister:
		return &guardedLister{GuardedLLM: g}
	default:
		return g
	}
}

// Name implements llm.Provider.
func (g *GuardedLLM) Name() string { return g.inner.Name() }

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedLLM) Breaker() *Breaker { return g.breaker }

// Complete implements llm.Provider.
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.breaker.Do(func() error {
		var cerr error
		resp, cerr = g.inner.Complete(ctx, req)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GuardedLLM) completeWithSchema(ctx context.Context, req llm.CompletionRequest, schema []byte) (*llm.CompletionResponse, error) {
	sc := g.inner.(llm.SchemaCompleter)
	var resp *llm.CompletionResponse
	err := g.breaker.Do(func() error {
		var cerr error
		resp, cerr = sc.CompleteWithSchema(ctx, req, schema)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// models bypasses the breaker: listing is the health probe used to decide
// whether the runtime is back.
func (g *GuardedLLM) models(ctx context.Context) ([]string, error) {
	return g.inner.(llm.ModelLister).Models(ctx)
}

type guardedSchema struct{ *GuardedLLM }

func (g *guardedSchema) CompleteWithSchema(ctx context.Context, req llm.CompletionRequest, schema []byte) (*llm.CompletionResponse, error) {
	return g.completeWithSchema(ctx, req, schema)
}

type guardedLister struct{ *GuardedLLM }

func (g *guardedLister) Models(ctx context.Context) ([]string, error) {
	return g.models(ctx)
}

type guardedFull struct{ *GuardedLLM }

func (g *guardedFull) CompleteWithSchema(ctx context.Context, req llm.CompletionRequest, schema []byte) (*llm.CompletionResponse, error) {
	return g.completeWithSchema(ctx, req, schema)
}

func (g *guardedFull) Models(ctx context.Context) ([]string, error) {
	return g.models(ctx)
}

var (
	_ llm.SchemaCompleter = (*guardedFull)(nil)
	_ llm.ModelLister     = (*guardedFull)(nil)
	_ llm.SchemaCompleter = (*guardedSchema)(nil)
	_ llm.ModelLister     = (*guardedLister)(nil)
)
