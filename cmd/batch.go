package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/table"
	"github.com/promptpolish/cli/pkg/util"
)

// BatchService optimizes several prompts in one call.
type BatchService interface {
	BatchOptimize(ctx context.Context, req optimizer.BatchRequest) (*optimizer.BatchResult, error)
}

type BatchCmd struct {
	svc BatchService
}

type BatchInput struct {
	Path    string
	Exts    []string
	Context string
	Focus   []string
	OutDir  string
	Archive string
	JSON    bool
}

var (
	batchExts    []string
	batchContext string
	batchFocus   []string
	batchOut     string
	batchArchive string
	batchJSON    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file-or-dir>",
	Short: "Optimize every prompt file under a path",
	Long: `Optimize a directory of prompt files (or a single file) in one call.

Files are matched by extension and read as one prompt each. With --out the
optimized prompts are written under that directory, mirroring the input
layout; --archive additionally zips the output directory:

  promptpolish batch ./prompts --out ./optimized
  promptpolish batch ./prompts --ext txt,md --out ./optimized --archive optimized.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringSliceVar(&batchExts, "ext", []string{"txt", "md", "prompt"}, "File extensions to treat as prompts")
	batchCmd.Flags().StringVar(&batchContext, "context", "", "Usage context applied to every prompt")
	batchCmd.Flags().StringSliceVar(&batchFocus, "focus", nil, "Criteria to prioritize: "+optimizer.JoinFocusDimensions(optimizer.AllFocusDimensions))
	batchCmd.Flags().StringVar(&batchOut, "out", "", "Directory to write optimized prompts into")
	batchCmd.Flags().StringVar(&batchArchive, "archive", "", "Zip the --out directory to this path after writing")
	addJSONFlag(batchCmd.Flags(), &batchJSON)
}

func (b BatchCmd) Run(ctx context.Context, in BatchInput) error {
	if in.Archive != "" && in.OutDir == "" {
		return fmt.Errorf("--archive requires --out")
	}
	focus, err := parseFocusList(in.Focus)
	if err != nil {
		return err
	}

	files, err := util.WalkPromptFiles(in.Path, util.NormalizeExts(in.Exts))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no prompt files found under %s (extensions: %s)", in.Path, strings.Join(in.Exts, ", "))
	}

	items, err := readBatchItems(in.Path, files)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("every matched file under %s is empty", in.Path)
	}

	var spinner *pterm.SpinnerPrinter
	if !in.JSON {
		spinner, _ = pterm.DefaultSpinner.Start(fmt.Sprintf("Optimizing %d prompts...", len(items)))
	}
	res, err := b.svc.BatchOptimize(ctx, optimizer.BatchRequest{
		Items:   items,
		Context: in.Context,
		Focus:   focus,
	})
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if in.JSON {
		return util.PrintPrettyJSON(res)
	}
	return b.report(res, in)
}

// report renders the per-file outcome table, then writes and archives
// outputs when asked to.
func (b BatchCmd) report(res *optimizer.BatchResult, in BatchInput) error {
	rows := pterm.TableData{{"File", "Before", "After", "Change", "Status"}}
	written := 0
	failed := 0
	for _, entry := range res.Entries {
		if entry.Err != "" || entry.Result == nil {
			failed++
			reason := entry.Err
			if reason == "" {
				reason = "no result"
			}
			rows = append(rows, []string{entry.ID, "-", "-", "-", util.Truncate(reason, 40)})
			continue
		}
		r := entry.Result
		rows = append(rows, []string{
			entry.ID,
			util.FormatScore(r.Scores.Original.Overall),
			util.FormatScore(r.Scores.Optimized.Overall),
			util.FormatDelta(r.ImprovementDelta()),
			"ok",
		})
		if in.OutDir != "" {
			if err := writeOptimizedFile(in.OutDir, entry.ID, r.OptimizedText); err != nil {
				return err
			}
			written++
		}
	}
	pterm.Println()
	table.Print(rows, true)
	pterm.Println()

	ok := len(res.Entries) - failed
	if failed > 0 {
		pterm.Warning.Printf("Optimized %d of %d prompts (%d failed)\n", ok, len(res.Entries), failed)
	} else {
		pterm.Success.Printf("Optimized %d prompts\n", ok)
	}
	if in.OutDir != "" {
		pterm.Info.Printf("Wrote %d files to %s\n", written, in.OutDir)
	}
	if in.Archive != "" {
		count, err := util.ZipDirectory(in.OutDir, in.Archive)
		if err != nil {
			return fmt.Errorf("failed to archive output: %w", err)
		}
		pterm.Info.Printf("Archived %d files to %s\n", count, in.Archive)
	}
	return nil
}

// readBatchItems loads each matched file. IDs are paths relative to the
// batch root so output files mirror the input layout. Empty files are
// skipped with a warning rather than failing the batch.
func readBatchItems(root string, files []string) ([]optimizer.BatchItem, error) {
	items := make([]optimizer.BatchItem, 0, len(files))
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		text := strings.TrimSpace(string(content))
		if text == "" {
			pterm.Warning.Printf("Skipping empty file %s\n", path)
			continue
		}
		id := path
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			id = filepath.ToSlash(rel)
		} else {
			id = filepath.Base(path)
		}
		items = append(items, optimizer.BatchItem{ID: id, Text: text})
	}
	return items, nil
}

func writeOptimizedFile(outDir, id, text string) error {
	dest := filepath.Join(outDir, filepath.FromSlash(id))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(dest, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b := BatchCmd{svc: newOptimizerClient(cfg)}
	return b.Run(cmd.Context(), BatchInput{
		Path:    args[0],
		Exts:    batchExts,
		Context: batchContext,
		Focus:   batchFocus,
		OutDir:  batchOut,
		Archive: batchArchive,
		JSON:    batchJSON,
	})
}
