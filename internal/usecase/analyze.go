// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	aipkg "github.com/johnmichaelkuczynski/texteval/internal/adapter/ai"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/observability"
	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

// DefaultInterChunkDelay is the pause between consecutive chunk pipelines.
// It exists to respect provider rate limits and keep expensive multi-phase
// calls from overlapping.
const DefaultInterChunkDelay = 10 * time.Second

const answerSeparator = "\n\n---\n\n"

// AnalyzeService orchestrates a full analysis: it selects the single-shot,
// four-phase comprehensive, or chunked-sequential strategy, drives the LLM
// calls, normalizes each reply, synthesizes multi-chunk results, and emits
// ordered progress events.
//
// Phases and chunks run strictly sequentially: comprehensive phases are
// causally dependent, and chunk processing rate-limits itself with
// InterChunkDelay. Unrelated Analyze calls are independent and may run
// concurrently.
type AnalyzeService struct {
	AI      domain.AIClient
	Results domain.ResultRepository
	Prompts *aipkg.PromptBuilder

	// InterChunkDelay is the pause after each chunk except the last.
	InterChunkDelay time.Duration
	// Sleep suspends between chunks; replaced in tests. It must return
	// early with ctx.Err() on cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewAnalyzeService constructs an AnalyzeService with its dependencies.
func NewAnalyzeService(ai domain.AIClient, results domain.ResultRepository, prompts *aipkg.PromptBuilder, interChunkDelay time.Duration) *AnalyzeService {
	if interChunkDelay <= 0 {
		interChunkDelay = DefaultInterChunkDelay
	}
	return &AnalyzeService{
		AI:              ai,
		Results:         results,
		Prompts:         prompts,
		InterChunkDelay: interChunkDelay,
		Sleep:           sleepCtx,
	}
}

// sleepCtx waits d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var resultEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // Weak random is sufficient for ULID entropy.

func newResultID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), resultEntropy)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}

// Analyze runs one analysis to completion. It either returns a complete,
// internally consistent result or an error from the domain taxonomy; it
// never stores a partial result.
func (s *AnalyzeService) Analyze(ctx context.Context, req domain.AnalysisRequest, onProgress domain.ProgressFunc) (domain.AnalysisResult, error) {
	tracer := otel.Tracer("usecase.analyze")
	ctx, span := tracer.Start(ctx, "Analyze")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return domain.AnalysisResult{}, err
	}

	observability.StartAnalysis(string(req.Mode))
	onProgress.Emit(domain.ProgressEvent{
		Type: domain.EventStatus, Phase: "initialization",
		Message: fmt.Sprintf("Starting %s analysis with %s", req.Mode, req.Provider),
	})

	res, err := s.run(ctx, req, onProgress)
	if err != nil {
		observability.FailAnalysis(string(req.Mode))
		onProgress.Emit(domain.ProgressEvent{Type: domain.EventError, Phase: "error", Error: err.Error()})
		return domain.AnalysisResult{}, err
	}

	if err := s.Results.Put(ctx, res); err != nil {
		observability.FailAnalysis(string(req.Mode))
		onProgress.Emit(domain.ProgressEvent{Type: domain.EventError, Phase: "error", Error: err.Error()})
		return domain.AnalysisResult{}, fmt.Errorf("%w: store result: %v", domain.ErrInternal, err)
	}

	observability.CompleteAnalysis(string(req.Mode), res.OverallScore)
	onProgress.Emit(domain.ProgressEvent{
		Type: domain.EventComplete, Phase: "complete",
		Message: "Analysis complete", Result: &res,
	})
	slog.Info("analysis completed",
		slog.String("result_id", res.ID),
		slog.String("mode", string(req.Mode)),
		slog.Int("overall_score", res.OverallScore))
	return res, nil
}

func validateRequest(req domain.AnalysisRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text must not be empty", domain.ErrInvalidArgument)
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidArgument, req.Mode)
	}
	if !req.Provider.Valid() {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidArgument, req.Provider)
	}
	if len(req.Chunks) > 0 && len(req.SelectedChunks()) == 0 {
		return fmt.Errorf("%w: no chunks selected", domain.ErrInvalidArgument)
	}
	return nil
}

// run classifies the request and executes the chosen strategy.
func (s *AnalyzeService) run(ctx context.Context, req domain.AnalysisRequest, onProgress domain.ProgressFunc) (domain.AnalysisResult, error) {
	selected := req.SelectedChunks()
	if len(selected) > 0 {
		return s.runChunked(ctx, req, selected, onProgress)
	}

	// Interactive single-shot: strict normalization so the user sees a
	// parse failure instead of degraded output.
	norm, raw, err := s.runUnit(ctx, req, req.Text, true, "", onProgress)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return s.assemble(req, norm, raw), nil
}

// runUnit executes one pipeline (standard or comprehensive) for one text,
// returning the normalized result and the labelled raw output.
func (s *AnalyzeService) runUnit(ctx context.Context, req domain.AnalysisRequest, text string, strict bool, labelPrefix string, onProgress domain.ProgressFunc) (aipkg.Normalized, string, error) {
	norm := &aipkg.Normalizer{Strict: strict, Questions: aipkg.QuestionsForMode}

	var raw string
	if req.Mode.Comprehensive() {
		phases, err := s.runComprehensive(ctx, req, text, labelPrefix, onProgress)
		if err != nil {
			return aipkg.Normalized{}, "", err
		}
		raw = phases.labelled()
		onProgress.Emit(domain.ProgressEvent{Type: domain.EventStatus, Phase: "parsing", Message: labelPrefix + "Parsing final response"})
		out, err := norm.Normalize(phases.p4, req.Mode)
		if err != nil {
			return aipkg.Normalized{}, "", err
		}
		return out, raw, nil
	}

	prompt := s.Prompts.Standard(text, req.BackgroundInfo, req.Critique, req.Mode)
	reply, err := s.callLLM(ctx, req.Provider, prompt, labelPrefix+"Evaluating text", "standard", onProgress)
	if err != nil {
		return aipkg.Normalized{}, "", err
	}
	onProgress.Emit(domain.ProgressEvent{Type: domain.EventStatus, Phase: "parsing", Message: labelPrefix + "Parsing response"})
	out, err := norm.Normalize(reply, req.Mode)
	if err != nil {
		return aipkg.Normalized{}, "", err
	}
	return out, reply, nil
}

// phaseOutputs holds the raw replies of the four comprehensive phases.
type phaseOutputs struct{ p1, p2, p3, p4 string }

func (p phaseOutputs) labelled() string {
	return "=== PHASE 1: INITIAL ASSESSMENT ===\n" + p.p1 +
		"\n\n=== PHASE 2: PUSHBACK ===\n" + p.p2 +
		"\n\n=== PHASE 3: VALIDATION ===\n" + p.p3 +
		"\n\n=== PHASE 4: SYNTHESIS ===\n" + p.p4
}

// runComprehensive drives the four-phase protocol. Phases are strictly
// sequential; each consumes the prior phase's raw text, and any phase
// failure aborts the whole unit.
func (s *AnalyzeService) runComprehensive(ctx context.Context, req domain.AnalysisRequest, text, labelPrefix string, onProgress domain.ProgressFunc) (phaseOutputs, error) {
	tracer := otel.Tracer("usecase.analyze")
	ctx, span := tracer.Start(ctx, "Comprehensive")
	defer span.End()

	var out phaseOutputs
	var err error

	out.p1, err = s.callLLM(ctx, req.Provider, s.Prompts.Phase1(text, req.BackgroundInfo, req.Critique, req.Mode), labelPrefix+"Phase 1: initial assessment", "phase1", onProgress)
	if err != nil {
		return phaseOutputs{}, err
	}
	out.p2, err = s.callLLM(ctx, req.Provider, s.Prompts.Phase2(out.p1, req.Mode), labelPrefix+"Phase 2: pushback", "phase2", onProgress)
	if err != nil {
		return phaseOutputs{}, err
	}
	out.p3, err = s.callLLM(ctx, req.Provider, s.Prompts.Phase3(out.p2, req.Mode), labelPrefix+"Phase 3: validation", "phase3", onProgress)
	if err != nil {
		return phaseOutputs{}, err
	}
	out.p4, err = s.callLLM(ctx, req.Provider, s.Prompts.Phase4(out.p1, out.p2, out.p3, req.Mode), labelPrefix+"Phase 4: synthesis", "phase4", onProgress)
	if err != nil {
		return phaseOutputs{}, err
	}
	return out, nil
}

// callLLM issues one provider call, streaming deltas to the progress sink
// when the client supports it.
func (s *AnalyzeService) callLLM(ctx context.Context, provider domain.Provider, prompt, message, phase string, onProgress domain.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	onProgress.Emit(domain.ProgressEvent{Type: domain.EventStatus, Phase: phase, Message: message})

	system := s.Prompts.SystemPrompt()
	if streamer, ok := s.AI.(domain.StreamingAIClient); ok && onProgress != nil {
		var acc strings.Builder
		return streamer.CallLLMStreaming(ctx, provider, prompt, system, func(delta string) {
			acc.WriteString(delta)
			onProgress.Emit(domain.ProgressEvent{
				Type:        domain.EventStreamingText,
				Phase:       phase,
				Delta:       delta,
				Accumulated: acc.String(),
			})
		})
	}
	return s.AI.CallLLM(ctx, provider, prompt, system)
}

// chunkOutcome records one chunk pipeline's result or failure.
type chunkOutcome struct {
	chunk domain.Chunk
	norm  aipkg.Normalized
	raw   string
	err   error
}

// runChunked processes each selected chunk through the single pipeline in
// original order, pausing InterChunkDelay between chunks. A failed chunk is
// recorded and excluded from synthesis; only all chunks failing is fatal.
func (s *AnalyzeService) runChunked(ctx context.Context, req domain.AnalysisRequest, selected []domain.Chunk, onProgress domain.ProgressFunc) (domain.AnalysisResult, error) {
	tracer := otel.Tracer("usecase.analyze")
	ctx, span := tracer.Start(ctx, "Chunked")
	defer span.End()

	outcomes := make([]chunkOutcome, 0, len(selected))
	for i, c := range selected {
		onProgress.Emit(domain.ProgressEvent{
			Type: domain.EventStatus, Phase: "chunk_start",
			Message: fmt.Sprintf("Analyzing %s (%d of %d)", c.Title, i+1, len(selected)),
		})
		labelPrefix := c.Title + ": "
		// Lenient normalization inside the batch: one unparseable chunk
		// must not abort the rest.
		norm, raw, err := s.runUnit(ctx, req, c.Text, false, labelPrefix, onProgress)
		if err != nil {
			if ctx.Err() != nil {
				return domain.AnalysisResult{}, ctx.Err()
			}
			slog.Warn("chunk pipeline failed",
				slog.String("chunk", c.Title), slog.Any("error", err))
			observability.ChunkFailuresTotal.Inc()
			outcomes = append(outcomes, chunkOutcome{chunk: c, err: err})
		} else {
			outcomes = append(outcomes, chunkOutcome{chunk: c, norm: norm, raw: raw})
			onProgress.Emit(domain.ProgressEvent{
				Type: domain.EventProgress, Phase: "chunk_done",
				Partial: partialResult(req, norm),
			})
		}
		if i < len(selected)-1 {
			onProgress.Emit(domain.ProgressEvent{
				Type: domain.EventStatus, Phase: "chunk_delay",
				Message: fmt.Sprintf("Waiting %s before next chunk", s.InterChunkDelay),
			})
			if err := s.Sleep(ctx, s.InterChunkDelay); err != nil {
				return domain.AnalysisResult{}, err
			}
		}
	}

	onProgress.Emit(domain.ProgressEvent{Type: domain.EventStatus, Phase: "synthesis", Message: "Synthesizing chunk results"})
	return s.synthesize(req, outcomes)
}

// partialResult packages a normalized unit as an intermediate result for
// progress events. It carries no id and is never stored.
func partialResult(req domain.AnalysisRequest, n aipkg.Normalized) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Mode:            req.Mode,
		Provider:        req.Provider,
		OverallScore:    n.OverallScore,
		Summary:         n.Summary,
		Category:        n.Category,
		Questions:       n.Questions,
		FinalAssessment: n.FinalAssessment,
	}
}

// synthesize merges successful chunk outcomes into one result: overall
// score is the rounded mean of chunk scores; questions are grouped by
// identical question text with joined answers and mean scores; the prose
// fields are prefixed concatenations.
func (s *AnalyzeService) synthesize(req domain.AnalysisRequest, outcomes []chunkOutcome) (domain.AnalysisResult, error) {
	var ok []chunkOutcome
	var failures []string
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", o.chunk.Title, o.err))
			continue
		}
		ok = append(ok, o)
	}
	if len(ok) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %d of %d chunks failed", domain.ErrAllChunksFailed, len(outcomes), len(outcomes))
	}

	type group struct {
		answers []string
		scores  []int
	}
	var order []string
	groups := make(map[string]*group)
	var overallScores []int
	var summaries, finals []string
	var categories []string
	seenCategory := make(map[string]bool)
	var rawParts []string

	for _, o := range ok {
		overallScores = append(overallScores, o.norm.OverallScore)
		summaries = append(summaries, o.norm.Summary)
		finals = append(finals, o.norm.FinalAssessment)
		if !seenCategory[o.norm.Category] {
			seenCategory[o.norm.Category] = true
			categories = append(categories, o.norm.Category)
		}
		rawParts = append(rawParts, "=== "+o.chunk.Title+" ===\n"+o.raw)
		for _, q := range o.norm.Questions {
			g, exists := groups[q.Question]
			if !exists {
				g = &group{}
				groups[q.Question] = g
				order = append(order, q.Question)
			}
			g.answers = append(g.answers, q.Answer)
			g.scores = append(g.scores, q.Score)
		}
	}
	for _, f := range failures {
		rawParts = append(rawParts, "=== FAILED "+f+" ===")
	}

	questions := make([]domain.QuestionResult, 0, len(order))
	for _, q := range order {
		g := groups[q]
		questions = append(questions, domain.QuestionResult{
			Question: q,
			Answer:   strings.Join(g.answers, answerSeparator),
			Score:    roundedMean(g.scores),
		})
	}

	prefix := fmt.Sprintf("Multi-chunk analysis (%d chunks): ", len(ok))
	res := domain.AnalysisResult{
		ID:              newResultID(),
		Mode:            req.Mode,
		Provider:        req.Provider,
		OverallScore:    roundedMean(overallScores),
		Summary:         prefix + strings.Join(summaries, " "),
		Category:        strings.Join(categories, ", "),
		Questions:       questions,
		FinalAssessment: prefix + strings.Join(finals, " "),
		Timestamp:       time.Now().UTC(),
		RawResponse:     strings.Join(rawParts, "\n\n"),
	}
	return res, nil
}

// assemble builds the stored result for a single-shot analysis.
func (s *AnalyzeService) assemble(req domain.AnalysisRequest, n aipkg.Normalized, raw string) domain.AnalysisResult {
	return domain.AnalysisResult{
		ID:              newResultID(),
		Mode:            req.Mode,
		Provider:        req.Provider,
		OverallScore:    n.OverallScore,
		Summary:         n.Summary,
		Category:        n.Category,
		Questions:       n.Questions,
		FinalAssessment: n.FinalAssessment,
		Timestamp:       time.Now().UTC(),
		RawResponse:     raw,
	}
}

func roundedMean(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(vals))))
}
