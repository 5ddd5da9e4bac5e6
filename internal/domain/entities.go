// Package domain holds the core entities, ports and error taxonomy of the
// text evaluator. It stays free of transport and vendor concerns; adapters
// implement the ports declared here.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrProviderCall    = errors.New("provider call failed")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrAllChunksFailed = errors.New("all chunks failed")
	ErrInternal        = errors.New("internal error")
)

// Mode identifies an evaluation protocol: a subject axis combined with a
// depth suffix. The -long suffix selects the four-phase comprehensive
// protocol, -short a single-shot call.
type Mode string

const (
	ModeCognitiveShort          Mode = "cognitive-short"
	ModeCognitiveLong           Mode = "cognitive-long"
	ModePsychologicalShort      Mode = "psychological-short"
	ModePsychologicalLong       Mode = "psychological-long"
	ModePsychopathologicalShort Mode = "psychopathological-short"
	ModePsychopathologicalLong  Mode = "psychopathological-long"
)

// Valid reports whether m is one of the six supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeCognitiveShort, ModeCognitiveLong,
		ModePsychologicalShort, ModePsychologicalLong,
		ModePsychopathologicalShort, ModePsychopathologicalLong:
		return true
	}
	return false
}

// Comprehensive reports whether m selects the four-phase protocol.
func (m Mode) Comprehensive() bool {
	switch m {
	case ModeCognitiveLong, ModePsychologicalLong, ModePsychopathologicalLong:
		return true
	}
	return false
}

// Subject returns the subject axis of the mode ("cognitive", ...).
func (m Mode) Subject() string {
	s := string(m)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '-' {
			return s[:i]
		}
	}
	return s
}

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderPerplexity Provider = "perplexity"
)

// Valid reports whether p is one of the four supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderPerplexity:
		return true
	}
	return false
}

// Chunk is a word-bounded contiguous slice of the original input text.
// Only Selected is mutated after creation, and only by the client.
type Chunk struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
	Title     string `json:"title"`
	Preview   string `json:"preview"`
	Selected  bool   `json:"selected"`
}

// AnalysisRequest is the input to a single analyze call.
type AnalysisRequest struct {
	Text           string   `json:"text"`
	BackgroundInfo string   `json:"backgroundInfo,omitempty"`
	Mode           Mode     `json:"mode"`
	Provider       Provider `json:"llmProvider"`
	Chunks         []Chunk  `json:"chunks,omitempty"`
	Critique       string   `json:"critique,omitempty"`
}

// SelectedChunks returns the chunks flagged by the client, in original order.
func (r AnalysisRequest) SelectedChunks() []Chunk {
	var out []Chunk
	for _, c := range r.Chunks {
		if c.Selected {
			out = append(out, c)
		}
	}
	return out
}

// QuestionResult is one answered evaluation question.
// Invariant: Score is always in [0,100].
type QuestionResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Score    int    `json:"score"`
}

// AnalysisResult is the final structured outcome of an analyze call.
// Immutable once created; stored by ID in a ResultRepository.
type AnalysisResult struct {
	ID              string           `json:"id"`
	Mode            Mode             `json:"mode"`
	Provider        Provider         `json:"llmProvider"`
	OverallScore    int              `json:"overallScore"`
	Summary         string           `json:"summary"`
	Category        string           `json:"category"`
	Questions       []QuestionResult `json:"questions"`
	FinalAssessment string           `json:"finalAssessment"`
	Timestamp       time.Time        `json:"timestamp"`
	RawResponse     string           `json:"rawResponse"`
}

// ResultRepository stores completed analysis results by id (port).
type ResultRepository interface {
	Put(ctx context.Context, r AnalysisResult) error
	Get(ctx context.Context, id string) (AnalysisResult, error)
}

// AIClient is the abstract LLM-call capability consumed by the orchestrator
// (port). Implementations own network concerns: auth, timeouts, retries.
type AIClient interface {
	CallLLM(ctx context.Context, provider Provider, prompt, systemPrompt string) (string, error)
}

// StreamingAIClient is optionally implemented by AIClients that can surface
// incremental output. OnToken receives each raw delta as it arrives; the
// full accumulated text is returned as usual.
type StreamingAIClient interface {
	CallLLMStreaming(ctx context.Context, provider Provider, prompt, systemPrompt string, onToken func(delta string)) (string, error)
}

// ParseError reports that raw model output could not be coerced into the
// result schema in strict mode. It names the first missing field.
type ParseError struct {
	Field string
}

func (e *ParseError) Error() string {
	return "schema invalid: model response missing " + e.Field
}

// Unwrap ties ParseError into the sentinel taxonomy.
func (e *ParseError) Unwrap() error { return ErrSchemaInvalid }
