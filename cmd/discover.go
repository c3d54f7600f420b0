package cmd

import (
	"context"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/table"
	"github.com/promptpolish/cli/pkg/util"
)

// DiscoverService drafts prompts from task descriptions and lists the
// service's optimizer specializations.
type DiscoverService interface {
	Discover(ctx context.Context, req optimizer.DiscoverRequest) (*optimizer.DiscoverResult, error)
	Specializations(ctx context.Context) ([]optimizer.Specialization, error)
}

type DiscoverCmd struct {
	svc DiscoverService
}

type DiscoverInput struct {
	Task    string
	Context string
	List    bool
	JSON    bool
}

var (
	discoverContext string
	discoverList    bool
	discoverJSON    bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover [task description]",
	Short: "Draft a prompt from a plain task description",
	Long: `Describe what you want a prompt for and get a drafted prompt back,
with the service's rationale for how it was shaped:

  promptpolish discover "extract action items from meeting notes"

With --list, show the optimizer specializations the service advertises
instead of drafting anything.`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().StringVar(&discoverContext, "context", "", "Where the drafted prompt will be used")
	discoverCmd.Flags().BoolVar(&discoverList, "list", false, "List available optimizer specializations")
	addJSONFlag(discoverCmd.Flags(), &discoverJSON)
}

func (d DiscoverCmd) Run(ctx context.Context, in DiscoverInput) error {
	if in.List {
		return d.listSpecializations(ctx, in.JSON)
	}

	req := optimizer.DiscoverRequest{Task: in.Task, Context: in.Context}
	if err := req.Validate(); err != nil {
		return err
	}

	var spinner *pterm.SpinnerPrinter
	if !in.JSON {
		spinner, _ = pterm.DefaultSpinner.Start("Drafting prompt...")
	}
	res, err := d.svc.Discover(ctx, req)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if in.JSON {
		return util.PrintPrettyJSON(res)
	}
	pterm.Println()
	renderPromptBox("Drafted prompt", res.Prompt)
	if res.Rationale != "" {
		pterm.Println()
		pterm.Println(pterm.Bold.Sprint("Rationale"))
		pterm.Println("  " + res.Rationale)
	}
	return nil
}

func (d DiscoverCmd) listSpecializations(ctx context.Context, asJSON bool) error {
	specs, err := d.svc.Specializations(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return util.PrintPrettyJSON(specs)
	}
	if len(specs) == 0 {
		pterm.Info.Println("The service advertises no specializations")
		return nil
	}
	rows := pterm.TableData{{"ID", "Name", "Description"}}
	for _, s := range specs {
		rows = append(rows, []string{s.ID, util.OrDash(s.Name), util.Truncate(s.Description, 60)})
	}
	table.Print(rows, true)
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d := DiscoverCmd{svc: newOptimizerClient(cfg)}
	return d.Run(cmd.Context(), DiscoverInput{
		Task:    strings.Join(args, " "),
		Context: discoverContext,
		List:    discoverList,
		JSON:    discoverJSON,
	})
}
