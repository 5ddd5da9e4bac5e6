package ai

import (
	"fmt"
	"strings"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

// PromptBuilder assembles the literal prompt text for each protocol phase.
// Every phase prompt is stateless: it carries all needed prior-phase text as
// input and ends with an explicit single-JSON-object format instruction.
type PromptBuilder struct{}

// NewPromptBuilder constructs a PromptBuilder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// SystemPrompt is shared by every call.
func (b *PromptBuilder) SystemPrompt() string {
	return "You are an expert evaluator of written text. You answer every question you are given about a text, you justify every numeric score you assign, and you respond with a single JSON object in exactly the requested format."
}

const protocolText = `SCORING PROTOCOL:
Score each question from 0 to 100. A score of N/100 means that (100-N) out of 100 people in the author's reference population outperform the author with respect to the trait the question probes. Scores of 90 and above mean the text decisively outperforms the overwhelming majority of texts of its kind. Scores below 50 mean the trait is substantially deficient. Do not compress scores into the 60-80 band out of caution: commit to the number your analysis supports.

Answer each question with a direct assessment grounded in quotations from or concrete references to the text. Do not answer a different question than the one asked. Do not let the subject matter of the text substitute for evidence about the author.`

const percentileText = `Walk through every numeric score you assigned. For each, restate what the score claims in population terms: a score of N/100 asserts that (100-N)/100 people outperform the author in that respect. If that population claim is inconsistent with your qualitative description of the text, change the score until the two agree, and say why.`

// Standard builds the single-shot prompt: text, optional background and
// critique blocks, the question list, protocol text and format instruction.
func (b *PromptBuilder) Standard(text, background, critique string, mode domain.Mode) string {
	var sb strings.Builder
	sb.WriteString("TEXT TO ANALYZE:\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")
	if background != "" {
		sb.WriteString("BACKGROUND INFORMATION (context only, not the object of evaluation):\n")
		sb.WriteString(background)
		sb.WriteString("\n\n")
	}
	if critique != "" {
		sb.WriteString("CRITIQUE OF A PRIOR EVALUATION OF THIS TEXT:\n\"")
		sb.WriteString(critique)
		sb.WriteString("\"\nRevise your evaluation in light of this critique. Address each point it raises explicitly; where you disagree with it, say so and defend your scoring.\n\n")
	}
	sb.WriteString("Answer the following questions about the text:\n")
	for i, q := range QuestionsForMode(mode) {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	sb.WriteString("\n")
	sb.WriteString(protocolText)
	sb.WriteString("\n\n")
	sb.WriteString(b.formatInstruction())
	return sb.String()
}

// Phase1 is the initial pass of the comprehensive protocol: the standard
// prompt plus a phase marker.
func (b *PromptBuilder) Phase1(text, background, critique string, mode domain.Mode) string {
	return b.Standard(text, background, critique, mode) +
		"\n\nThis is phase 1 of a four-phase evaluation. Give your full initial assessment."
}

// Phase2 pushes back on phase 1: re-examine each score against the
// population-percentile reading and answer the question set again de novo.
func (b *PromptBuilder) Phase2(phase1Raw string, mode domain.Mode) string {
	var sb strings.Builder
	sb.WriteString("This is phase 2 of a four-phase evaluation. Below is your phase 1 assessment:\n\n")
	sb.WriteString(phase1Raw)
	sb.WriteString("\n\n")
	sb.WriteString(percentileText)
	sb.WriteString("\n\nThen answer the question set again de novo, without deference to your phase 1 answers:\n")
	for i, q := range QuestionsForMode(mode) {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	sb.WriteString("\n")
	sb.WriteString(b.formatInstruction())
	return sb.String()
}

// Phase3 validates phase 2's numbers: sanity-check each score against the
// percentile interpretation and flag inconsistencies with the qualitative
// claims made about the text.
func (b *PromptBuilder) Phase3(phase2Raw string, mode domain.Mode) string {
	var sb strings.Builder
	sb.WriteString("This is phase 3 of a four-phase evaluation. Below is the phase 2 assessment:\n\n")
	sb.WriteString(phase2Raw)
	sb.WriteString("\n\n")
	sb.WriteString(percentileText)
	sb.WriteString("\nFlag every score that is inconsistent with a qualitative claim made about the text, and correct it.\n\n")
	sb.WriteString(b.formatInstruction())
	return sb.String()
}

// Phase4 synthesizes one definitive final answer from all prior phases,
// explaining any score changes across phases.
func (b *PromptBuilder) Phase4(phase1Raw, phase2Raw, phase3Raw string, mode domain.Mode) string {
	var sb strings.Builder
	sb.WriteString("This is phase 4, the final phase, of a four-phase evaluation. The three prior phases follow.\n\n")
	sb.WriteString("PHASE 1 (INITIAL ASSESSMENT):\n")
	sb.WriteString(phase1Raw)
	sb.WriteString("\n\nPHASE 2 (PUSHBACK):\n")
	sb.WriteString(phase2Raw)
	sb.WriteString("\n\nPHASE 3 (VALIDATION):\n")
	sb.WriteString(phase3Raw)
	sb.WriteString("\n\nProduce one definitive final evaluation. Where a score changed across phases, explain the change in the relevant answer. The final scores must survive the population-percentile reading used in phases 2 and 3.\n\n")
	sb.WriteString(b.formatInstruction())
	return sb.String()
}

// formatInstruction names the required output schema. Every phase prompt
// ends with it.
func (b *PromptBuilder) formatInstruction() string {
	return `CRITICAL: Respond with ONLY a single valid JSON object in exactly this format. No explanations, markdown, or text outside the JSON:
{
  "summary": "overall summary of the evaluation",
  "category": "classification of the text",
  "overallScore": 0,
  "questions": [
    {"question": "the question text", "answer": "your assessment", "score": 0}
  ],
  "finalAssessment": "your definitive concluding assessment"
}`
}
