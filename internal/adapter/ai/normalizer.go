// Package ai turns unreliable free-form LLM output into the structured
// evaluation schema and assembles the prompts that produce it.
package ai

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

// Normalizer converts a raw model reply into the evaluation result shape.
//
// Recovery runs as a staged pipeline, each stage a pure attempt feeding
// forward on failure: fenced ```json block → brace-matched substring →
// strict parse → pattern-based field extraction → validation/repair.
//
// Strict selects the failure policy when a required field cannot be
// recovered at all: lenient mode fills documented placeholders and
// continues (the right call inside chunked batches, where one bad unit must
// not abort the rest); strict mode returns a ParseError naming the missing
// field (the right call for interactive single-shot analyses).
type Normalizer struct {
	Strict bool
	// Questions supplies the canonical question set for a mode, used to
	// fill a missing question list in lenient mode. May be nil.
	Questions func(mode domain.Mode) []string
}

// Normalized is the schema every recovery path converges on.
type Normalized struct {
	Summary         string
	Category        string
	OverallScore    int
	Questions       []domain.QuestionResult
	FinalAssessment string
}

// Placeholder values used by the lenient failure policy.
const (
	placeholderAnswer  = "Analysis completed"
	placeholderSummary = "Analysis completed"
	placeholderScore   = 50
)

// Normalize runs the recovery pipeline over raw model output.
func (n *Normalizer) Normalize(raw string, mode domain.Mode) (Normalized, error) {
	parsed, ok := parseCandidate(raw)
	if !ok {
		parsed, ok = extractFields(raw)
	}
	if !ok {
		parsed = partial{}
	}
	return n.repair(parsed, mode)
}

// partial is the loosely-typed shape recovered from model output before
// validation. Pointer fields distinguish absent from zero.
type partial struct {
	Summary         string
	Category        string
	OverallScore    *int
	Questions       []domain.QuestionResult
	FinalAssessment string
}

// parseCandidate locates the most promising JSON candidate in raw and
// attempts a strict parse. The fenced block wins over any other
// brace-delimited text.
func parseCandidate(raw string) (partial, bool) {
	if candidate, ok := extractFencedJSON(raw); ok {
		if p, ok := parseJSON(candidate); ok {
			return p, true
		}
	}
	if candidate, ok := extractBraceMatched(raw); ok {
		if p, ok := parseJSON(candidate); ok {
			return p, true
		}
	}
	return partial{}, false
}

var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractFencedJSON returns the content of the first ```json fenced block.
func extractFencedJSON(raw string) (string, bool) {
	m := fencedRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// extractBraceMatched scans left to right and returns the first substring
// from a '{' to the brace that returns nesting depth to zero. This handles
// models that wrap JSON in explanatory prose.
func extractBraceMatched(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// flexInt unmarshals a score that may arrive as a number, a numeric string,
// or a float.
type flexInt struct {
	val int
	set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil // tolerate garbage; treated as absent
	}
	f.val = int(math.Round(v))
	f.set = true
	return nil
}

type rawQuestion struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    flexInt `json:"score"`
}

type rawResult struct {
	Summary          string        `json:"summary"`
	Category         string        `json:"category"`
	OverallScore     flexInt       `json:"overallScore"`
	OverallScoreAlt  flexInt       `json:"overall_score"`
	Questions        []rawQuestion `json:"questions"`
	FinalAssessment  string        `json:"finalAssessment"`
	FinalAssessAlt   string        `json:"final_assessment"`
}

// parseJSON strictly parses candidate into the loose partial shape,
// tolerating snake_case aliases for the two composite field names.
func parseJSON(candidate string) (partial, bool) {
	var r rawResult
	if err := json.Unmarshal([]byte(candidate), &r); err != nil {
		return partial{}, false
	}
	p := partial{
		Summary:         strings.TrimSpace(r.Summary),
		Category:        strings.TrimSpace(r.Category),
		FinalAssessment: strings.TrimSpace(r.FinalAssessment),
	}
	if p.FinalAssessment == "" {
		p.FinalAssessment = strings.TrimSpace(r.FinalAssessAlt)
	}
	overall := r.OverallScore
	if !overall.set {
		overall = r.OverallScoreAlt
	}
	if overall.set {
		v := overall.val
		p.OverallScore = &v
	}
	for _, q := range r.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		score := placeholderScore
		if q.Score.set {
			score = q.Score.val
		}
		p.Questions = append(p.Questions, domain.QuestionResult{
			Question: q.Question,
			Answer:   q.Answer,
			Score:    score,
		})
	}
	return p, true
}

var (
	questionObjRe = regexp.MustCompile(`\{\s*"question"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"answer"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"score"\s*:\s*(-?\d+(?:\.\d+)?)`)
	summaryRe     = regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// extractFields is the last-resort recovery stage: scan raw text for
// repeated question/answer/score objects and a summary field, tolerating
// the malformed JSON around them.
func extractFields(raw string) (partial, bool) {
	var p partial
	for _, m := range questionObjRe.FindAllStringSubmatch(raw, -1) {
		score := placeholderScore
		if v, err := strconv.ParseFloat(m[3], 64); err == nil {
			score = int(math.Round(v))
		}
		p.Questions = append(p.Questions, domain.QuestionResult{
			Question: unescapeJSONString(m[1]),
			Answer:   unescapeJSONString(m[2]),
			Score:    score,
		})
	}
	if m := summaryRe.FindStringSubmatch(raw); m != nil {
		p.Summary = unescapeJSONString(m[1])
	}
	return p, len(p.Questions) > 0 || p.Summary != ""
}

// unescapeJSONString decodes a JSON string body captured by regex.
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// repair applies the validation invariants: clamp scores, require summary
// and questions (per policy), derive overall score, category and final
// assessment when absent.
func (n *Normalizer) repair(p partial, mode domain.Mode) (Normalized, error) {
	out := Normalized{
		Summary:         p.Summary,
		Category:        p.Category,
		FinalAssessment: p.FinalAssessment,
	}

	if out.Summary == "" {
		if n.Strict {
			return Normalized{}, &domain.ParseError{Field: "summary"}
		}
		out.Summary = placeholderSummary
	}

	for _, q := range p.Questions {
		q.Score = clampScore(q.Score)
		if q.Answer == "" {
			q.Answer = placeholderAnswer
		}
		out.Questions = append(out.Questions, q)
	}
	if len(out.Questions) == 0 {
		if n.Strict {
			return Normalized{}, &domain.ParseError{Field: "questions"}
		}
		if n.Questions != nil {
			for _, q := range n.Questions(mode) {
				out.Questions = append(out.Questions, domain.QuestionResult{
					Question: q,
					Answer:   placeholderAnswer,
					Score:    placeholderScore,
				})
			}
		}
	}

	// Keep a model-supplied overall score when present; recompute from
	// question scores only when it is absent.
	if p.OverallScore != nil {
		out.OverallScore = clampScore(*p.OverallScore)
	} else {
		out.OverallScore = meanScore(out.Questions)
	}

	if out.Category == "" {
		out.Category = CategoryForMode(mode)
	}
	if out.FinalAssessment == "" {
		out.FinalAssessment = out.Summary
	}
	return out, nil
}

// clampScore forces a score into [0,100].
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// meanScore returns the rounded arithmetic mean of the question scores, or
// the placeholder when there are none.
func meanScore(qs []domain.QuestionResult) int {
	if len(qs) == 0 {
		return placeholderScore
	}
	sum := 0
	for _, q := range qs {
		sum += q.Score
	}
	return int(math.Round(float64(sum) / float64(len(qs))))
}

// CategoryForMode maps a mode's subject axis to its report category.
func CategoryForMode(mode domain.Mode) string {
	switch mode.Subject() {
	case "cognitive":
		return "Cognitive Function"
	case "psychological":
		return "Psychological Characteristics"
	case "psychopathological":
		return "Psychopathological Assessment"
	default:
		return "General Analysis"
	}
}
