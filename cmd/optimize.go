package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/util"
)

// OptimizeService is the slice of the optimizer client the optimize command
// uses. Narrow so tests can substitute a fake.
type OptimizeService interface {
	Optimize(ctx context.Context, req optimizer.OptimizationRequest) (*optimizer.OptimizationResult, error)
}

type OptimizeCmd struct {
	svc OptimizeService
}

type OptimizeInput struct {
	Text        string
	Context     string
	Audience    string
	Focus       []string
	Constraints string
	JSON        bool
	Quiet       bool
}

var (
	optimizeFile        string
	optimizeContext     string
	optimizeAudience    string
	optimizeFocus       []string
	optimizeConstraints string
	optimizeJSON        bool
	optimizeQuiet       bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [prompt]",
	Short: "Optimize a prompt and show before/after scores",
	Long: `Optimize a prompt through the backend service.

The prompt is taken from the command line, from --file, or from stdin:

  promptpolish optimize "summarize this article for a general audience"
  promptpolish optimize --file prompt.txt
  cat prompt.txt | promptpolish optimize --quiet`,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().StringVarP(&optimizeFile, "file", "f", "", "Read the prompt from a file")
	optimizeCmd.Flags().StringVar(&optimizeContext, "context", "", "Where the prompt will be used (e.g. 'customer support chatbot')")
	optimizeCmd.Flags().StringVar(&optimizeAudience, "audience", "", "Audience the prompt's output is written for")
	optimizeCmd.Flags().StringSliceVar(&optimizeFocus, "focus", nil, "Criteria to prioritize: "+optimizer.JoinFocusDimensions(optimizer.AllFocusDimensions))
	optimizeCmd.Flags().StringVar(&optimizeConstraints, "constraints", "", "Constraints the rewrite must respect")
	addJSONFlag(optimizeCmd.Flags(), &optimizeJSON)
	optimizeCmd.Flags().BoolVarP(&optimizeQuiet, "quiet", "q", false, "Print only the optimized prompt")
}

func (o OptimizeCmd) Run(ctx context.Context, in OptimizeInput) error {
	focus, err := parseFocusList(in.Focus)
	if err != nil {
		return err
	}
	req := optimizer.OptimizationRequest{
		Text:           in.Text,
		Context:        in.Context,
		TargetAudience: in.Audience,
		Focus:          focus,
		Constraints:    in.Constraints,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	var spinner *pterm.SpinnerPrinter
	if !in.JSON && !in.Quiet {
		spinner, _ = pterm.DefaultSpinner.Start("Optimizing prompt...")
	}
	res, err := o.svc.Optimize(ctx, req)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if in.JSON {
		return util.PrintPrettyJSON(res)
	}
	if in.Quiet {
		pterm.Println(res.OptimizedText)
		return nil
	}
	renderOptimizationResult(res)
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	text, err := resolvePromptText(args, optimizeFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	o := OptimizeCmd{svc: newOptimizerClient(cfg)}
	return o.Run(cmd.Context(), OptimizeInput{
		Text:        text,
		Context:     optimizeContext,
		Audience:    optimizeAudience,
		Focus:       optimizeFocus,
		Constraints: optimizeConstraints,
		JSON:        optimizeJSON,
		Quiet:       optimizeQuiet,
	})
}

// resolvePromptText sources a prompt: command arguments first, then --file,
// then piped stdin.
func resolvePromptText(args []string, filePath string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if text := strings.TrimSpace(string(content)); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("no prompt provided: pass it as an argument, with --file, or on stdin")
}

func parseFocusList(names []string) ([]optimizer.FocusDimension, error) {
	var dims []optimizer.FocusDimension
	for _, name := range names {
		d, err := optimizer.ParseFocusDimension(name)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, nil
}
