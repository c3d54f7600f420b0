package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/util"
)

// ScoreService scores prompts without rewriting them.
type ScoreService interface {
	ScoreOnly(ctx context.Context, text string) (*optimizer.ScoreSet, error)
}

type ScoreCmd struct {
	svc ScoreService
}

type ScoreInput struct {
	Text        string
	CompareText string
	JSON        bool
}

var (
	scoreFile    string
	scoreCompare string
	scoreJSON    bool
)

var scoreCmd = &cobra.Command{
	Use:   "score [prompt]",
	Short: "Score a prompt without rewriting it",
	Long: `Score a prompt against the five quality criteria without changing it.

With --compare, a second prompt is read from a file and scored alongside
the first, showing per-criterion deltas:

  promptpolish score "write a poem about the sea"
  promptpolish score --file draft.txt --compare revised.txt`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringVarP(&scoreFile, "file", "f", "", "Read the prompt from a file")
	scoreCmd.Flags().StringVar(&scoreCompare, "compare", "", "Score a second prompt from this file and show deltas")
	addJSONFlag(scoreCmd.Flags(), &scoreJSON)
}

func (s ScoreCmd) Run(ctx context.Context, in ScoreInput) error {
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("prompt text must not be empty")
	}

	var spinner *pterm.SpinnerPrinter
	if !in.JSON {
		spinner, _ = pterm.DefaultSpinner.Start("Scoring prompt...")
	}
	first, err := s.svc.ScoreOnly(ctx, in.Text)
	if err == nil && in.CompareText != "" {
		var second *optimizer.ScoreSet
		second, err = s.svc.ScoreOnly(ctx, in.CompareText)
		if err == nil {
			if spinner != nil {
				_ = spinner.Stop()
			}
			return s.renderCompare(in, first, second)
		}
	}
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if in.JSON {
		return util.PrintPrettyJSON(first)
	}
	pterm.Println()
	renderScoreSet(*first)
	return nil
}

func (s ScoreCmd) renderCompare(in ScoreInput, first, second *optimizer.ScoreSet) error {
	if in.JSON {
		return util.PrintPrettyJSON(struct {
			First  *optimizer.ScoreSet `json:"first"`
			Second *optimizer.ScoreSet `json:"second"`
		}{first, second})
	}
	pterm.Println()
	renderScorePairTable(*first, *second, "First", "Second")
	pterm.Println()
	diff := second.Overall - first.Overall
	switch {
	case diff > 0:
		pterm.Success.Printf("Second prompt scores higher (%s)\n", util.FormatDelta(diff))
	case diff < 0:
		pterm.Warning.Printf("Second prompt scores lower (%s)\n", util.FormatDelta(diff))
	default:
		pterm.Info.Println("Both prompts score the same overall")
	}
	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	text, err := resolvePromptText(args, scoreFile)
	if err != nil {
		return err
	}
	var compareText string
	if scoreCompare != "" {
		content, err := os.ReadFile(scoreCompare)
		if err != nil {
			return fmt.Errorf("failed to read compare file: %w", err)
		}
		compareText = strings.TrimSpace(string(content))
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s := ScoreCmd{svc: newOptimizerClient(cfg)}
	return s.Run(cmd.Context(), ScoreInput{
		Text:        text,
		CompareText: compareText,
		JSON:        scoreJSON,
	})
}
