package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/bridge"
	"github.com/promptpolish/cli/internal/config"
	"github.com/promptpolish/cli/internal/handoff"
	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/util"
)

// PopupService is the optimizer surface the popup session drives.
type PopupService interface {
	Optimize(ctx context.Context, req optimizer.OptimizationRequest) (*optimizer.OptimizationResult, error)
	ScoreOnly(ctx context.Context, text string) (*optimizer.ScoreSet, error)
	TestConnection(ctx context.Context) bool
}

var popupText string

var popupCmd = &cobra.Command{
	Use:   "popup",
	Short: "Interactive optimization session",
	Long: `Start an interactive prompt optimization session.

The session keeps one working prompt. Typed text replaces it; slash
commands act on it. On start the session picks up any text handed off
from an attached page (via the selection hotkey or 'handoff set').

Special commands:
  /optimize       - Optimize the working prompt
  /score          - Score the working prompt without changing it
  /pull           - Pull the chat input text from the attached page
  /push           - Push the working prompt into the attached page
  /focus [dims]   - Set or show the focus criteria
  /context [text] - Set or show the usage context
  /show           - Show the working prompt and settings
  /status         - Check backend and bridge connectivity
  /retry          - Re-test the backend connection
  /clear          - Clear the terminal
  /quit, /exit    - Leave the session`,
	Example: `  # Start a session (picks up handed-off text)
  promptpolish popup

  # Start with a prompt already loaded
  promptpolish popup --text "explain kubernetes to a five year old"`,
	RunE: runPopup,
}

func init() {
	rootCmd.AddCommand(popupCmd)
	popupCmd.Flags().StringVar(&popupText, "text", "", "Start with this working prompt instead of the handoff")
}

type popupSession struct {
	cfg    *config.Config
	svc    PopupService
	bridge *bridge.Client
	store  handoff.Store

	prompt    string
	focus     []optimizer.FocusDimension
	useCtx    string
	last      *optimizer.OptimizationResult
	backendUp bool
	bridgeUp  bool
}

func runPopup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := handoff.Open(cfg)
	if err != nil {
		return err
	}
	p := &popupSession{
		cfg:    cfg,
		svc:    newOptimizerClient(cfg),
		bridge: newBridgeClient(cfg),
		store:  store,
	}
	return p.run(cmd.Context())
}

func (p *popupSession) run(ctx context.Context) error {
	pterm.Println()
	pterm.DefaultHeader.WithBackgroundStyle(pterm.NewStyle(pterm.BgBlue)).
		WithTextStyle(pterm.NewStyle(pterm.FgWhite)).
		Println("PromptPolish")
	pterm.Println()

	p.backendUp = p.svc.TestConnection(ctx)
	if p.backendUp {
		pterm.Info.Printf("Backend: %s\n", p.cfg.APIURL)
	} else {
		pterm.Warning.Printf("Backend unreachable at %s (use /retry once it is up)\n", p.cfg.APIURL)
	}
	p.bridgeUp = p.bridge.Alive(ctx)
	if p.bridgeUp {
		pterm.Info.Println("Bridge daemon: connected")
	}

	p.seedPrompt(ctx)
	pterm.Println()
	pterm.Info.Println("Type a prompt and press Enter, then /optimize. Use /help for commands.")
	pterm.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		pterm.Print(p.promptMarker())
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			handled, exit := p.handleCommand(ctx, input)
			if exit {
				pterm.Info.Println("Goodbye!")
				return nil
			}
			if handled {
				continue
			}
		}
		p.prompt = input
		pterm.Info.Printf("Working prompt set (%d chars). /optimize when ready.\n", len(p.prompt))
	}
	return nil
}

// promptMarker doubles as the connectivity indicator.
func (p *popupSession) promptMarker() string {
	if p.backendUp {
		return pterm.Green("> ")
	}
	return pterm.Red("! ")
}

// seedPrompt loads handed-off text: the bridge holds the fresh copy when a
// daemon runs, the state file otherwise, then the page's live selection as
// a last resort. --text wins over all of them.
func (p *popupSession) seedPrompt(ctx context.Context) {
	if popupText != "" {
		p.prompt = popupText
		pterm.Info.Printf("Working prompt loaded from --text (%d chars)\n", len(p.prompt))
		return
	}
	var text string
	if p.bridgeUp {
		text, _ = p.bridge.LastText(ctx)
	}
	if text == "" {
		text, _ = p.store.Get(ctx)
	}
	if text == "" && p.bridgeUp {
		text, _ = p.bridge.SelectedText(ctx)
	}
	if text != "" {
		p.prompt = text
		pterm.Info.Printf("Picked up handed-off text (%d chars)\n", len(p.prompt))
	}
}

func (p *popupSession) handleCommand(ctx context.Context, input string) (handled bool, exit bool) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/quit", "/exit", "/q":
		return true, true

	case "/clear":
		fmt.Print("\033[H\033[2J")
		pterm.Info.Println("Terminal cleared.")
		return true, false

	case "/help", "/?":
		p.printHelp()
		return true, false

	case "/show":
		p.showState()
		return true, false

	case "/optimize", "/o":
		p.doOptimize(ctx)
		return true, false

	case "/score", "/s":
		p.doScore(ctx)
		return true, false

	case "/focus":
		p.setFocus(arg)
		return true, false

	case "/context":
		p.setContext(arg)
		return true, false

	case "/pull":
		p.doPull(ctx)
		return true, false

	case "/push":
		p.doPush(ctx)
		return true, false

	case "/status":
		p.doStatus(ctx)
		return true, false

	case "/retry":
		p.backendUp = p.svc.TestConnection(ctx)
		if p.backendUp {
			pterm.Success.Println("Backend is reachable")
		} else {
			pterm.Error.Printf("Backend still unreachable at %s\n", p.cfg.APIURL)
		}
		return true, false

	default:
		pterm.Warning.Printf("Unknown command: %s (use /help for available commands)\n", cmd)
		return true, false
	}
}

func (p *popupSession) doOptimize(ctx context.Context) {
	if strings.TrimSpace(p.prompt) == "" {
		pterm.Warning.Println("No working prompt. Type one first, or /pull from the page.")
		return
	}
	spinner, _ := pterm.DefaultSpinner.Start("Optimizing prompt...")
	res, err := p.svc.Optimize(ctx, optimizer.OptimizationRequest{
		Text:    p.prompt,
		Context: p.useCtx,
		Focus:   p.focus,
	})
	_ = spinner.Stop()
	if err != nil {
		p.reportError(err)
		return
	}
	p.backendUp = true
	p.last = res
	renderOptimizationResult(res)
	renderDiff(res.OriginalText, res.OptimizedText)
	p.prompt = res.OptimizedText
	pterm.Println()
	pterm.Info.Println("Working prompt replaced with the optimized text. /push to send it to the page.")
}

func (p *popupSession) doScore(ctx context.Context) {
	if strings.TrimSpace(p.prompt) == "" {
		pterm.Warning.Println("No working prompt. Type one first, or /pull from the page.")
		return
	}
	spinner, _ := pterm.DefaultSpinner.Start("Scoring prompt...")
	set, err := p.svc.ScoreOnly(ctx, p.prompt)
	_ = spinner.Stop()
	if err != nil {
		p.reportError(err)
		return
	}
	p.backendUp = true
	pterm.Println()
	renderScoreSet(*set)
}

func (p *popupSession) setFocus(arg string) {
	switch arg {
	case "":
		if len(p.focus) == 0 {
			pterm.Info.Println("No focus set; the service weighs all criteria equally.")
		} else {
			pterm.Info.Printf("Focus: %s\n", optimizer.JoinFocusDimensions(p.focus))
		}
	case "clear", "none":
		p.focus = nil
		pterm.Info.Println("Focus cleared.")
	default:
		dims, err := parseFocusList(strings.Split(arg, ","))
		if err != nil {
			pterm.Error.Println(err.Error())
			return
		}
		p.focus = dims
		pterm.Info.Printf("Focus set: %s\n", optimizer.JoinFocusDimensions(p.focus))
	}
}

func (p *popupSession) setContext(arg string) {
	switch arg {
	case "":
		if p.useCtx == "" {
			pterm.Info.Println("No context set.")
		} else {
			pterm.Info.Printf("Context: %s\n", p.useCtx)
		}
	case "clear", "none":
		p.useCtx = ""
		pterm.Info.Println("Context cleared.")
	default:
		p.useCtx = arg
		pterm.Info.Printf("Context set: %s\n", p.useCtx)
	}
}

func (p *popupSession) doPull(ctx context.Context) {
	if !p.requireBridge(ctx) {
		return
	}
	text, err := p.bridge.ChatText(ctx)
	if err != nil {
		pterm.Error.Printf("Pull failed: %v\n", err)
		return
	}
	if strings.TrimSpace(text) == "" {
		pterm.Warning.Println("The page's chat input is empty.")
		return
	}
	p.prompt = text
	pterm.Success.Printf("Pulled %d chars from the page.\n", len(text))
}

func (p *popupSession) doPush(ctx context.Context) {
	if strings.TrimSpace(p.prompt) == "" {
		pterm.Warning.Println("No working prompt to push.")
		return
	}
	if !p.requireBridge(ctx) {
		return
	}
	res, err := p.bridge.ReplaceChatText(ctx, p.prompt)
	if err != nil {
		pterm.Error.Printf("Push failed: %v\n", err)
		return
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "page did not accept the text"
		}
		pterm.Error.Printf("Push rejected: %s\n", reason)
		return
	}
	pterm.Success.Println("Pushed the working prompt into the page.")
}

func (p *popupSession) doStatus(ctx context.Context) {
	p.backendUp = p.svc.TestConnection(ctx)
	p.bridgeUp = p.bridge.Alive(ctx)
	pterm.Info.Printf("Backend: %s (%s)\n", p.cfg.APIURL, upDown(p.backendUp))
	if p.bridgeUp {
		health, err := p.bridge.Health(ctx)
		if err == nil && health.Page != nil {
			pterm.Info.Printf("Bridge: %s (up, page attached: %s)\n", p.cfg.BridgeURL(), health.Page.URL)
			return
		}
		pterm.Info.Printf("Bridge: %s (up, no page attached)\n", p.cfg.BridgeURL())
		return
	}
	pterm.Info.Printf("Bridge: %s (down)\n", p.cfg.BridgeURL())
}

func (p *popupSession) requireBridge(ctx context.Context) bool {
	p.bridgeUp = p.bridge.Alive(ctx)
	if !p.bridgeUp {
		pterm.Warning.Println("Bridge daemon not running. Start it with: promptpolish serve")
		return false
	}
	return true
}

// reportError classifies a failed call and keeps the session alive.
func (p *popupSession) reportError(err error) {
	switch {
	case optimizer.IsUnreachable(err):
		p.backendUp = false
		pterm.Error.Printf("Backend unreachable: %v\n", err)
		pterm.Info.Println("Use /retry once the service is back up.")
	case optimizer.IsValidation(err):
		pterm.Warning.Printf("Rejected locally: %v\n", err)
	default:
		if rej, ok := optimizer.AsServerRejected(err); ok {
			pterm.Error.Printf("Service rejected the request: %s\n", rej.Message)
			return
		}
		pterm.Error.Printf("Error: %v\n", err)
	}
}

func (p *popupSession) showState() {
	if strings.TrimSpace(p.prompt) == "" {
		pterm.Info.Println("No working prompt.")
	} else {
		pterm.Println()
		renderPromptBox("Working prompt", p.prompt)
	}
	pterm.Println()
	pterm.Info.Printf("Focus: %s\n", util.OrDash(optimizer.JoinFocusDimensions(p.focus)))
	pterm.Info.Printf("Context: %s\n", util.OrDash(p.useCtx))
	if p.last != nil {
		pterm.Info.Printf("Last optimization: %s overall (%s)\n",
			util.FormatScore(p.last.Scores.Optimized.Overall),
			util.FormatDelta(p.last.ImprovementDelta()))
	}
}

func (p *popupSession) printHelp() {
	pterm.Println()
	pterm.Info.Println("Available commands:")
	pterm.Println("  /optimize, /o   - Optimize the working prompt")
	pterm.Println("  /score, /s      - Score the working prompt without changing it")
	pterm.Println("  /pull           - Pull the chat input text from the attached page")
	pterm.Println("  /push           - Push the working prompt into the attached page")
	pterm.Println("  /focus [dims]   - Set focus criteria (comma-separated), 'clear' to reset")
	pterm.Println("  /context [text] - Set the usage context, 'clear' to reset")
	pterm.Println("  /show           - Show the working prompt and settings")
	pterm.Println("  /status         - Check backend and bridge connectivity")
	pterm.Println("  /retry          - Re-test the backend connection")
	pterm.Println("  /clear          - Clear the terminal")
	pterm.Println("  /quit, /exit    - Leave the session")
	pterm.Println()
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
