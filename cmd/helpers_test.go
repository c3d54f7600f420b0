package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/pterm/pterm"

	"github.com/promptpolish/cli/internal/optimizer"
)

var outBuf bytes.Buffer

// setupStdoutCapture points pterm at an in-memory buffer so tests can assert
// on rendered output. The package-level prefix printers bind their Writer at
// init time, so they must be redirected individually alongside
// SetDefaultOutput.
func setupStdoutCapture(t *testing.T) {
	t.Helper()
	outBuf.Reset()
	pterm.SetDefaultOutput(&outBuf)
	pterm.Info.Writer = &outBuf
	pterm.Success.Writer = &outBuf
	pterm.Warning.Writer = &outBuf
	pterm.Error.Writer = &outBuf
	pterm.DisableColor()
	t.Cleanup(func() {
		pterm.SetDefaultOutput(os.Stdout)
		pterm.Info.Writer = os.Stdout
		pterm.Success.Writer = os.Stdout
		pterm.Warning.Writer = os.Stdout
		pterm.Error.Writer = os.Stdout
		pterm.EnableColor()
	})
}

func sampleScoreSet(overall float64) optimizer.ScoreSet {
	crit := func(score float64, note string) optimizer.CriterionScore {
		return optimizer.CriterionScore{
			Score:       score,
			Explanation: note,
			Issues:      []string{},
			Strengths:   []string{},
		}
	}
	return optimizer.ScoreSet{
		Clarity:       crit(overall-0.4, "mostly readable"),
		Specificity:   crit(overall-0.2, "names its subject"),
		Completeness:  crit(overall+0.2, "covers the ask"),
		Effectiveness: crit(overall+0.3, "actionable"),
		Robustness:    crit(overall+0.1, "few escape hatches"),
		Overall:       overall,
	}
}

func sampleResult() *optimizer.OptimizationResult {
	return &optimizer.OptimizationResult{
		OriginalText:  "write code",
		OptimizedText: "Write an idiomatic Go function with tests and doc comments.",
		Scores: optimizer.ScorePair{
			Original:  sampleScoreSet(5.2),
			Optimized: sampleScoreSet(8.4),
		},
		Analysis:        "The original prompt is too vague to act on.",
		Feedback:        []string{"Name the language and deliverables"},
		Recommendations: []string{"State the audience explicitly"},
	}
}
