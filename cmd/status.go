package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/promptpolish/cli/internal/config"
	"github.com/promptpolish/cli/pkg/update"
	"github.com/promptpolish/cli/pkg/util"
)

type componentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type statusReport struct {
	Components []componentStatus `json:"components"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the backend, bridge daemon, auth, and CLI version",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	report := statusReport{Components: []componentStatus{
		checkBackend(ctx, cfg),
		checkBridge(ctx, cfg),
		checkAuth(cfg),
		checkVersion(ctx),
	}}

	if output == "json" {
		return util.PrintPrettyJSON(report)
	}
	printStatusReport(report)
	return nil
}

func checkBackend(ctx context.Context, cfg *config.Config) componentStatus {
	opt := newOptimizerClient(cfg)
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	specs, err := opt.Specializations(probeCtx)
	if err != nil {
		return componentStatus{
			Name:   "Backend",
			Status: "down",
			Detail: fmt.Sprintf("unreachable at %s", cfg.APIURL),
		}
	}
	detail := cfg.APIURL
	if len(specs) > 0 {
		detail = fmt.Sprintf("%s (%d specializations)", cfg.APIURL, len(specs))
	}
	return componentStatus{Name: "Backend", Status: "operational", Detail: detail}
}

func checkBridge(ctx context.Context, cfg *config.Config) componentStatus {
	brg := newBridgeClient(cfg)
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	health, err := brg.Health(probeCtx)
	if err != nil {
		return componentStatus{
			Name:   "Bridge daemon",
			Status: "off",
			Detail: "not running (start with: promptpolish serve)",
		}
	}
	if health.Page != nil {
		return componentStatus{
			Name:   "Bridge daemon",
			Status: "operational",
			Detail: "page attached: " + health.Page.URL,
		}
	}
	return componentStatus{Name: "Bridge daemon", Status: "operational", Detail: "no page attached"}
}

func checkAuth(cfg *config.Config) componentStatus {
	if key, err := keyring.Get(keyringService, keyringUser); err == nil && key != "" {
		return componentStatus{Name: "API key", Status: "operational", Detail: "stored in OS keyring"}
	}
	if cfg.APIKey != "" {
		return componentStatus{Name: "API key", Status: "operational", Detail: "from environment"}
	}
	return componentStatus{
		Name:   "API key",
		Status: "degraded",
		Detail: "not set (promptpolish auth set-key)",
	}
}

func checkVersion(ctx context.Context) componentStatus {
	current := metadata.Version
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	latest, _, err := update.FetchLatest(fetchCtx)
	if err != nil {
		return componentStatus{Name: "CLI version", Status: "off", Detail: current + " (update check failed)"}
	}
	newer, err := update.IsNewerVersion(current, latest)
	if err != nil || !newer {
		return componentStatus{Name: "CLI version", Status: "operational", Detail: strings.TrimPrefix(current, "v") + " (latest)"}
	}
	return componentStatus{
		Name:   "CLI version",
		Status: "degraded",
		Detail: fmt.Sprintf("%s available (%s)", latest, update.SuggestUpgradeCommand()),
	}
}

var statusDisplay = map[string]struct {
	label string
	rgb   pterm.RGB
}{
	"operational": {label: "Operational", rgb: pterm.NewRGB(31, 163, 130)},
	"degraded":    {label: "Needs Attention", rgb: pterm.NewRGB(245, 158, 11)},
	"down":        {label: "Unreachable", rgb: pterm.NewRGB(239, 68, 68)},
	"off":         {label: "Not Running", rgb: pterm.NewRGB(128, 128, 128)},
}

func getStatusDisplay(status string) (string, pterm.RGB) {
	if d, ok := statusDisplay[status]; ok {
		return d.label, d.rgb
	}
	return "Unknown", pterm.NewRGB(128, 128, 128)
}

func coloredDot(rgb pterm.RGB) string {
	return rgb.Sprint("●")
}

func printStatusReport(report statusReport) {
	pterm.Println()
	for _, comp := range report.Components {
		label, rgb := getStatusDisplay(comp.Status)
		line := fmt.Sprintf("  %s %-14s %s", coloredDot(rgb), comp.Name, label)
		if comp.Detail != "" {
			line += "  " + pterm.Gray(comp.Detail)
		}
		pterm.Println(line)
	}
	pterm.Println()
}
