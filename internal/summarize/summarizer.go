// Package summarize implements map-reduce summarization of meeting
// transcripts and structured data extraction over a local LLM.
//
// The MAP phase condenses each sealed transcript chunk into a short summary
// as soon as it arrives; the REDUCE phase combines all chunk summaries into
// the final narrative at session stop; the extraction pass turns the same
// summaries into [MeetingData]. Raw transcript text never reaches REDUCE or
// extraction, only the MAP outputs do.
//
// One [MapReduce] instance is shared by all sessions so the weighted
// semaphore caps total concurrent LLM calls process-wide.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/auricle-audio/auricle/pkg/provider/llm"
)

// SummaryUnavailable replaces a chunk summary when MAP fails twice. REDUCE
// proceeds with the placeholder rather than losing the whole session.
const SummaryUnavailable = "[summary unavailable]"

// Default prompt templates. `{text}` and `{summaries_text}` are substituted
// before the prompt is sent.
const (
	DefaultChunkPrompt = `Summarize this conversation segment in 2-3 concise paragraphs. Focus on:
- Main discussion points and context
- Key decisions or action items
- Important information shared

If contact/company/deal data is mentioned (names, roles, AUM, ticket sizes, products, strategies), note it briefly but do NOT format it as structured lists - that will be extracted separately.

Transcript:
{text}

Summary:`

	DefaultFinalPrompt = `You are summarizing a sales discovery call at an asset management company focused on alternative investments.

Create a concise final summary (3-5 paragraphs maximum) covering:
1. Meeting context and participants
2. Key discussion points and client needs
3. Important decisions or next steps
4. Notable insights or observations

DO NOT repeat structured data (names, roles, AUM, ticket sizes, products) in list format - this will be extracted separately. Keep the summary narrative and flowing.

Segment Summaries:
{summaries_text}

Final Summary:`

	DefaultExtractionPrompt = `You are extracting structured data from meeting summaries. Review the summaries below and extract all mentioned information into the specified JSON format.

If information is not mentioned or unclear, use null for that field.

Summaries:
{summaries_text}

Extract the following information as JSON:`
)

// Default sampling and budget parameters.
const (
	DefaultChunkMaxTokens      = 300
	DefaultFinalMaxTokens      = 1200
	DefaultExtractionMaxTokens = 2000
	DefaultMaxConcurrentCalls  = 2

	defaultTemperature = 0.7
	defaultTopK        = 20
	defaultTopP        = 0.8
)

// Prompts bundles the three templates. Zero-value fields fall back to the
// package defaults.
type Prompts struct {
	Chunk      string
	Final      string
	Extraction string
}

// Option is a functional option for configuring a MapReduce.
type Option func(*MapReduce)

// WithPrompts overrides the default prompt templates. Empty fields keep
// their defaults.
func WithPrompts(p Prompts) Option {
	return func(m *MapReduce) {
		if p.Chunk != "" {
			m.prompts.Chunk = p.Chunk
		}
		if p.Final != "" {
			m.prompts.Final = p.Final
		}
		if p.Extraction != "" {
			m.prompts.Extraction = p.Extraction
		}
	}
}

// WithTokenLimits sets the completion budgets for chunk and final summaries.
// Non-positive values keep the defaults.
func WithTokenLimits(chunk, final int) Option {
	return func(m *MapReduce) {
		if chunk > 0 {
			m.chunkMaxTokens = chunk
		}
		if final > 0 {
			m.finalMaxTokens = final
		}
	}
}

// WithMaxConcurrentCalls caps LLM calls in flight across all sessions.
func WithMaxConcurrentCalls(n int) Option {
	return func(m *MapReduce) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *MapReduce) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// MapReduce performs chunk summarization, final reduction, and structured
// extraction. Safe for concurrent use; one instance serves every session.
type MapReduce struct {
	provider llm.Provider
	prompts  Prompts
	sem      *semaphore.Weighted
	logger   *slog.Logger

	chunkMaxTokens int
	finalMaxTokens int

	now func() time.Time
}

// NewMapReduce creates a summarizer over the given provider.
func NewMapReduce(provider llm.Provider, opts ...Option) *MapReduce {
	m := &MapReduce{
		provider: provider,
		prompts: Prompts{
			Chunk:      DefaultChunkPrompt,
			Final:      DefaultFinalPrompt,
			Extraction: DefaultExtractionPrompt,
		},
		sem:            semaphore.NewWeighted(DefaultMaxConcurrentCalls),
		logger:         slog.Default(),
		chunkMaxTokens: DefaultChunkMaxTokens,
		finalMaxTokens: DefaultFinalMaxTokens,
		now:            time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ForSession returns a copy of m with per-session prompt overrides and,
// optionally, a different provider. The copy shares the concurrency
// semaphore so the process-wide LLM call cap still holds.
func (m *MapReduce) ForSession(provider llm.Provider, p Prompts) *MapReduce {
	derived := *m
	if provider != nil {
		derived.provider = provider
	}
	if p.Chunk != "" {
		derived.prompts.Chunk = p.Chunk
	}
	if p.Final != "" {
		derived.prompts.Final = p.Final
	}
	if p.Extraction != "" {
		derived.prompts.Extraction = p.Extraction
	}
	return &derived
}

// Map summarizes one transcript chunk. Transient failures are retried once;
// a second failure yields SummaryUnavailable so the REDUCE phase can still
// run. An empty chunk yields an empty summary without an LLM call.
func (m *MapReduce) Map(ctx context.Context, chunkText string) string {
	if strings.TrimSpace(chunkText) == "" {
		return ""
	}
	prompt := strings.ReplaceAll(m.prompts.Chunk, "{text}", chunkText)

	content, err := m.complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: defaultTemperature,
		TopK:        defaultTopK,
		TopP:        defaultTopP,
		MaxTokens:   m.chunkMaxTokens,
	})
	if err != nil {
		m.logger.Warn("chunk summary failed after retry, using placeholder", "error", err)
		return SummaryUnavailable
	}
	return strings.TrimSpace(content)
}

// Reduce combines all chunk summaries into the final summary, prefixed with
// a generation timestamp and segment count header.
func (m *MapReduce) Reduce(ctx context.Context, summaries []string) (string, error) {
	if len(summaries) == 0 {
		return "", fmt.Errorf("summarize: no chunk summaries to reduce")
	}
	prompt := strings.ReplaceAll(m.prompts.Final, "{summaries_text}", joinSummaries(summaries))

	content, err := m.complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: defaultTemperature,
		TopK:        defaultTopK,
		TopP:        defaultTopP,
		MaxTokens:   m.finalMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: reduce: %w", err)
	}

	header := fmt.Sprintf("Summary Generated: %s\nNumber of Segments: %d",
		m.now().Format("2006-01-02 15:04:05"), len(summaries))
	return header + "\n\n" + strings.TrimSpace(content) + "\n", nil
}

// Extract turns chunk summaries into MeetingData. Providers with native
// schema support get the schema as a decoding constraint; otherwise the
// schema is appended to the prompt and the raw JSON is validated locally.
// Parse or validation failures are retried once; a second failure returns
// empty data with ok=false.
func (m *MapReduce) Extract(ctx context.Context, summaries []string) (MeetingData, bool) {
	if len(summaries) == 0 {
		return EmptyMeetingData(), false
	}
	prompt := strings.ReplaceAll(m.prompts.Extraction, "{summaries_text}", joinSummaries(summaries))
	schema := MeetingDataSchema()

	sc, constrained := m.provider.(llm.SchemaCompleter)
	if !constrained {
		prompt = prompt + "\n\nJSON Schema:\n" + string(schema)
	}

	for attempt := 0; attempt < 2; attempt++ {
		var resp *llm.CompletionResponse
		req := llm.CompletionRequest{Prompt: prompt, MaxTokens: DefaultExtractionMaxTokens}
		err := m.acquire(ctx, func() error {
			var cerr error
			if constrained {
				resp, cerr = sc.CompleteWithSchema(ctx, req, schema)
			} else {
				resp, cerr = m.provider.Complete(ctx, req)
			}
			return cerr
		})
		if err != nil {
			m.logger.Warn("extraction call failed", "attempt", attempt+1, "error", err)
			continue
		}

		data, err := ParseMeetingData([]byte(stripJSONFences(resp.Content)))
		if err != nil {
			m.logger.Warn("extraction output rejected", "attempt", attempt+1, "error", err)
			continue
		}
		return *data, true
	}

	m.logger.Error("EXTRACTION_FALLBACK: returning empty meeting data")
	return EmptyMeetingData(), false
}

// complete runs one completion under the semaphore, retrying once.
func (m *MapReduce) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var resp *llm.CompletionResponse
		err := m.acquire(ctx, func() error {
			var cerr error
			resp, cerr = m.provider.Complete(ctx, req)
			return cerr
		})
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// acquire runs fn while holding one semaphore slot.
func (m *MapReduce) acquire(ctx context.Context, fn func() error) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)
	return fn()
}

// joinSummaries renders summaries as numbered items separated by blank lines.
func joinSummaries(summaries []string) string {
	items := make([]string, len(summaries))
	for i, s := range summaries {
		items[i] = fmt.Sprintf("[%d] %s", i+1, s)
	}
	return strings.Join(items, "\n\n")
}

// stripJSONFences removes markdown code fences some models wrap around JSON.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
