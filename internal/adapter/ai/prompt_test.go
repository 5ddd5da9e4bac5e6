package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

func TestStandardPromptShape(t *testing.T) {
	b := NewPromptBuilder()
	p := b.Standard("the text body", "", "", domain.ModeCognitiveLong)
	assert.Contains(t, p, "TEXT TO ANALYZE:\nthe text body")
	assert.NotContains(t, p, "BACKGROUND INFORMATION")
	assert.NotContains(t, p, "CRITIQUE OF A PRIOR EVALUATION")
	assert.Contains(t, p, "SCORING PROTOCOL:")
	assert.Contains(t, p, `"overallScore"`)
	// every canonical question appears, numbered
	for i, q := range QuestionsForMode(domain.ModeCognitiveLong) {
		assert.Contains(t, p, q)
		_ = i
	}
	assert.Contains(t, p, "1. ")
}

func TestStandardPromptOptionalBlocks(t *testing.T) {
	b := NewPromptBuilder()
	p := b.Standard("t", "the author is a physicist", "scores were inflated", domain.ModeCognitiveShort)
	assert.Contains(t, p, "BACKGROUND INFORMATION")
	assert.Contains(t, p, "the author is a physicist")
	assert.Contains(t, p, "CRITIQUE OF A PRIOR EVALUATION")
	assert.Contains(t, p, `"scores were inflated"`)
}

func TestPhase2ContainsPhase1Verbatim(t *testing.T) {
	b := NewPromptBuilder()
	phase1Raw := `{"summary": "phase one raw output", "overallScore": 91}`
	p := b.Phase2(phase1Raw, domain.ModePsychologicalLong)
	assert.Contains(t, p, phase1Raw)
	assert.Contains(t, p, "de novo")
	for _, q := range QuestionsForMode(domain.ModePsychologicalLong) {
		assert.Contains(t, p, q)
	}
}

func TestPhase4ContainsAllPriorPhases(t *testing.T) {
	b := NewPromptBuilder()
	p := b.Phase4("RAW-ONE", "RAW-TWO", "RAW-THREE", domain.ModeCognitiveLong)
	i1 := strings.Index(p, "RAW-ONE")
	i2 := strings.Index(p, "RAW-TWO")
	i3 := strings.Index(p, "RAW-THREE")
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
	assert.Contains(t, p, "PHASE 1 (INITIAL ASSESSMENT):")
	assert.Contains(t, p, "PHASE 3 (VALIDATION):")
}

func TestEveryPromptEndsWithFormatInstruction(t *testing.T) {
	b := NewPromptBuilder()
	mode := domain.ModeCognitiveLong
	prompts := []string{
		b.Standard("t", "", "", mode),
		b.Phase1("t", "", "", mode),
		b.Phase2("r1", mode),
		b.Phase3("r2", mode),
		b.Phase4("r1", "r2", "r3", mode),
	}
	for _, p := range prompts {
		assert.Contains(t, p, "CRITICAL: Respond with ONLY a single valid JSON object")
		assert.Contains(t, p, `"finalAssessment"`)
	}
}
