// Package ollama provides an llm.Provider backed by a local Ollama server.
//
// The provider speaks Ollama's native REST API rather than its OpenAI
// compatibility layer: the native /api/generate endpoint accepts a "format"
// field carrying a full JSON schema, which the extraction pass relies on for
// constrained decoding. Model listing (/api/tags) and pulling (/api/pull)
// are wrapped so the engine can verify and fetch the configured model at
// startup.
//
// Usage:
//
//	p, err := ollama.New("http://localhost:11434", "qwen3:4b-instruct-2507-q4_K_M")
//	resp, err := p.Complete(ctx, llm.CompletionRequest{Prompt: "..."})
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/auricle-audio/auricle/pkg/provider/llm"
)

// DefaultBaseURL is the address a stock Ollama install listens on.
const DefaultBaseURL = "http://localhost:11434"

// Compile-time assertions for the core and capability interfaces.
var (
	_ llm.Provider        = (*Provider)(nil)
	_ llm.SchemaCompleter = (*Provider)(nil)
	_ llm.ModelLister     = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client used for API requests. The
// default allows five minutes per call since local generation on CPU can be
// slow for long transcripts.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements llm.Provider against Ollama's native REST API.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Provider for the Ollama server at baseURL using the given
// model. Pass DefaultBaseURL for a stock local install.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("ollama: baseURL must not be empty")
	}
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "ollama" }

// generateRequest is the body for POST /api/generate.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
}

// generateResponse is the non-streaming body from POST /api/generate.
type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return p.generate(ctx, req, nil)
}

// CompleteWithSchema implements llm.SchemaCompleter. The schema is passed as
// Ollama's "format" field, which constrains decoding server-side.
func (p *Provider) CompleteWithSchema(ctx context.Context, req llm.CompletionRequest, schema []byte) (*llm.CompletionResponse, error) {
	if len(schema) == 0 {
		return nil, errors.New("ollama: schema must not be empty")
	}
	return p.generate(ctx, req, schema)
}

func (p *Provider) generate(ctx context.Context, req llm.CompletionRequest, schema []byte) (*llm.CompletionResponse, error) {
	if req.Prompt == "" {
		return nil, errors.New("ollama: prompt must not be empty")
	}

	body := generateRequest{
		Model:   p.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: buildOptions(req, schema != nil),
	}
	if schema != nil {
		body.Format = json.RawMessage(schema)
	}

	raw, err := p.post(ctx, "/api/generate", body)
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("ollama: parse generate response: %w", err)
	}
	return &llm.CompletionResponse{
		Content: resp.Response,
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// buildOptions maps request sampling parameters onto Ollama's options map.
// Schema-constrained calls force temperature 0.0 so a zero-value request
// still decodes deterministically; free-form calls leave zero fields to the
// model defaults.
func buildOptions(req llm.CompletionRequest, constrained bool) map[string]any {
	opts := map[string]any{}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	} else if constrained {
		opts["temperature"] = 0.0
	}
	if req.TopK > 0 {
		opts["top_k"] = req.TopK
	}
	if req.TopP > 0 {
		opts["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// tagsResponse is the body from GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models implements llm.ModelLister by querying GET /api/tags.
func (p *Provider) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: server returned HTTP %d for /api/tags", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: parse tags response: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// EnsureModel verifies the configured model is installed, pulling it from
// the Ollama registry if not. Pulling a multi-gigabyte model can take
// minutes; callers should pass a generous context deadline.
func (p *Provider) EnsureModel(ctx context.Context) error {
	names, err := p.Models(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == p.model || strings.TrimSuffix(name, ":latest") == p.model {
			return nil
		}
	}

	pull := struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}{Name: p.model, Stream: false}

	raw, err := p.post(ctx, "/api/pull", pull)
	if err != nil {
		return fmt.Errorf("ollama: pull model %q: %w", p.model, err)
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("ollama: parse pull response: %w", err)
	}
	if status.Status != "success" {
		return fmt.Errorf("ollama: pull model %q finished with status %q", p.model, status.Status)
	}
	return nil
}

// post sends a JSON body and returns the raw response bytes.
func (p *Provider) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: server returned HTTP %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
