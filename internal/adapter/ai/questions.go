package ai

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

//go:embed questions.yaml
var questionsYAML []byte

type questionSets struct {
	Cognitive          []string `yaml:"cognitive"`
	Psychological      []string `yaml:"psychological"`
	Psychopathological []string `yaml:"psychopathological"`
}

var sets = mustLoadQuestionSets()

func mustLoadQuestionSets() questionSets {
	var qs questionSets
	if err := yaml.Unmarshal(questionsYAML, &qs); err != nil {
		panic(fmt.Sprintf("ai: embedded questions.yaml invalid: %v", err))
	}
	if len(qs.Cognitive) == 0 || len(qs.Psychological) == 0 || len(qs.Psychopathological) == 0 {
		panic("ai: embedded questions.yaml missing a question set")
	}
	return qs
}

// QuestionsForMode returns the canonical question list for a mode.
// The cognitive set is identical for short and long modes; the other axes
// send the full list in long mode and the first half (rounded up) in short.
func QuestionsForMode(mode domain.Mode) []string {
	var full []string
	switch mode.Subject() {
	case "cognitive":
		return append([]string(nil), sets.Cognitive...)
	case "psychological":
		full = sets.Psychological
	case "psychopathological":
		full = sets.Psychopathological
	default:
		return nil
	}
	if strings.HasSuffix(string(mode), "-short") {
		half := (len(full) + 1) / 2
		return append([]string(nil), full[:half]...)
	}
	return append([]string(nil), full...)
}
