package llm

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// backends for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the prompt and system
	// instruction.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a
	// convenience; some backends return it directly rather than computing it
	// from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Prompt
// must be non-empty.
type CompletionRequest struct {
	// Prompt is the full text the model completes. Map and reduce prompts
	// embed the transcript material directly rather than as chat turns.
	Prompt string

	// System is an optional high-priority instruction injected before the
	// prompt. Backends without a dedicated system field should prepend it.
	System string

	// Temperature controls output randomness. Zero requests the backend
	// default; extraction passes set it explicitly to force determinism.
	Temperature float64

	// TopK limits sampling to the K most likely tokens. Zero means backend
	// default.
	TopK int

	// TopP is the nucleus sampling cutoff in (0.0, 1.0]. Zero means backend
	// default.
	TopP float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the backend default.
	MaxTokens int
}

// CompletionResponse is returned by Complete and CompleteWithSchema.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair. Zero
	// when the backend does not report counts.
	Usage Usage
}
