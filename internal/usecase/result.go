package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

// ResultService provides read access to stored analysis results and their
// plain-text export rendering.
type ResultService struct {
	Results domain.ResultRepository
}

// NewResultService constructs a ResultService with the given repository.
func NewResultService(r domain.ResultRepository) ResultService {
	return ResultService{Results: r}
}

// Fetch returns the result stored under id.
func (s ResultService) Fetch(ctx context.Context, id string) (domain.AnalysisResult, error) {
	if strings.TrimSpace(id) == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: id required", domain.ErrInvalidArgument)
	}
	return s.Results.Get(ctx, id)
}

// FormatResultAsText renders a result as a fixed human-readable report:
// header block, summary, category, per-question Q/A/score, final
// assessment, raw response.
func FormatResultAsText(r domain.AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString("TEXT EVALUATION REPORT\n")
	sb.WriteString("======================\n\n")
	fmt.Fprintf(&sb, "Result ID:     %s\n", r.ID)
	fmt.Fprintf(&sb, "Mode:          %s\n", r.Mode)
	fmt.Fprintf(&sb, "Provider:      %s\n", r.Provider)
	fmt.Fprintf(&sb, "Generated:     %s\n", r.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "Overall Score: %d/100\n\n", r.OverallScore)

	sb.WriteString("SUMMARY\n-------\n")
	sb.WriteString(r.Summary)
	sb.WriteString("\n\n")

	sb.WriteString("CATEGORY\n--------\n")
	sb.WriteString(r.Category)
	sb.WriteString("\n\n")

	sb.WriteString("QUESTIONS\n---------\n")
	for i, q := range r.Questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q.Question)
		fmt.Fprintf(&sb, "   Answer: %s\n", q.Answer)
		fmt.Fprintf(&sb, "   Score:  %d/100\n\n", q.Score)
	}

	sb.WriteString("FINAL ASSESSMENT\n----------------\n")
	sb.WriteString(r.FinalAssessment)
	sb.WriteString("\n\n")

	sb.WriteString("RAW RESPONSE\n------------\n")
	sb.WriteString(r.RawResponse)
	sb.WriteString("\n")
	return sb.String()
}
