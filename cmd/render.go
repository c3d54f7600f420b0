package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/pterm/pterm"

	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/table"
	"github.com/promptpolish/cli/pkg/util"
)

var promptBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1).
	Width(76)

func renderPromptBox(title, text string) {
	pterm.Println(pterm.Bold.Sprint(title))
	pterm.Println(promptBoxStyle.Render(strings.TrimSpace(text)))
}

// renderOptimizationResult is the shared human-readable view of one
// optimization: score movement, the rewritten prompt, and the service's
// commentary.
func renderOptimizationResult(res *optimizer.OptimizationResult) {
	pterm.Println()
	delta := res.ImprovementDelta()
	if res.Improved() {
		pterm.Success.Printf("Score improved: %s to %s (%s)\n",
			util.FormatScore(res.Scores.Original.Overall),
			util.FormatScore(res.Scores.Optimized.Overall),
			util.FormatDelta(delta))
	} else {
		pterm.Info.Printf("Score: %s to %s (%s)\n",
			util.FormatScore(res.Scores.Original.Overall),
			util.FormatScore(res.Scores.Optimized.Overall),
			util.FormatDelta(delta))
	}
	pterm.Println()

	renderScoreComparison(res.Scores)
	pterm.Println()
	renderPromptBox("Optimized prompt", res.OptimizedText)

	if res.Analysis != "" {
		pterm.Println()
		pterm.Println(pterm.Bold.Sprint("Analysis"))
		pterm.Println("  " + res.Analysis)
	}
	renderBullets("Feedback", res.Feedback)
	renderBullets("Recommendations", res.Recommendations)
	if res.UsageNotes != "" {
		pterm.Println()
		pterm.Info.Println(res.UsageNotes)
	}
}

func renderScoreComparison(scores optimizer.ScorePair) {
	renderScorePairTable(scores.Original, scores.Optimized, "Before", "After")
}

func renderScorePairTable(first, second optimizer.ScoreSet, firstLabel, secondLabel string) {
	rows := pterm.TableData{{"Criterion", firstLabel, secondLabel, "Change"}}
	fc := first.Criteria()
	sc := second.Criteria()
	for i, f := range fc {
		s := sc[i]
		rows = append(rows, []string{
			titleCase(string(f.Dimension)),
			util.FormatScore(f.Score),
			util.FormatScore(s.Score),
			util.FormatDelta(s.Score - f.Score),
		})
	}
	rows = append(rows, []string{
		"Overall",
		util.FormatScore(first.Overall),
		util.FormatScore(second.Overall),
		util.FormatDelta(second.Overall - first.Overall),
	})
	table.Print(rows, true)
}

// renderScoreSet shows one prompt's scores with per-criterion commentary.
func renderScoreSet(set optimizer.ScoreSet) {
	rows := pterm.TableData{{"Criterion", "Score", "Notes"}}
	for _, c := range set.Criteria() {
		rows = append(rows, []string{
			titleCase(string(c.Dimension)),
			util.FormatScore(c.Score),
			util.Truncate(c.Explanation, 60),
		})
	}
	rows = append(rows, []string{"Overall", util.FormatScore(set.Overall), ""})
	table.Print(rows, true)

	for _, c := range set.Criteria() {
		if len(c.Issues) == 0 {
			continue
		}
		pterm.Println()
		pterm.Println(pterm.Bold.Sprint(titleCase(string(c.Dimension)) + " issues"))
		for _, issue := range c.Issues {
			pterm.Println("  - " + issue)
		}
	}
}

// renderDiff prints a colored line diff of the rewrite. Quiet when nothing
// changed.
func renderDiff(before, after string) {
	lines := util.DiffLines(before, after)
	changed := false
	for _, l := range lines {
		if l.Kind != util.DiffSame {
			changed = true
			break
		}
	}
	if !changed {
		return
	}
	pterm.Println()
	pterm.Println(pterm.Bold.Sprint("Changes"))
	for _, l := range lines {
		switch l.Kind {
		case util.DiffDel:
			pterm.Println(pterm.Red("- " + l.Text))
		case util.DiffAdd:
			pterm.Println(pterm.Green("+ " + l.Text))
		default:
			pterm.Println("  " + l.Text)
		}
	}
}

func renderBullets(title string, items []string) {
	if len(items) == 0 {
		return
	}
	pterm.Println()
	pterm.Println(pterm.Bold.Sprint(title))
	for _, item := range items {
		pterm.Println("  - " + item)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
