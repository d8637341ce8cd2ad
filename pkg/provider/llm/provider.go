// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a local model runtime (e.g., an Ollama instance or a
// llama.cpp server) and exposes a uniform completion interface so the
// summarization pipeline never couples to any specific SDK. Completions here
// are plain prompt-in/text-out; conversation history and tool calling are out
// of scope for this engine.
//
// Two optional capability interfaces extend the core contract. Backends that
// can constrain generation to a JSON schema implement [SchemaCompleter];
// backends that can enumerate locally installed models implement
// [ModelLister]. Callers discover both by type assertion and fall back to
// prompt-level instructions when the assertion fails.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Name returns the stable identifier of this backend (e.g., "ollama").
	Name() string

	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// SchemaCompleter is implemented by providers whose runtime can constrain
// decoding to a JSON schema. The schema is the raw JSON Schema document.
//
// The returned Content is the JSON text; callers still validate it, since
// runtime schema enforcement varies in strictness between backends.
type SchemaCompleter interface {
	CompleteWithSchema(ctx context.Context, req CompletionRequest, schema []byte) (*CompletionResponse, error)
}

// ModelLister is implemented by providers that can enumerate the models
// installed in the local runtime. Used at startup to verify the configured
// model is available before any session starts.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}
