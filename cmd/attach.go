package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/bridge"
	"github.com/promptpolish/cli/internal/handoff"
	"github.com/promptpolish/cli/internal/page"
)

var (
	attachHeadless bool
	attachURL      string
	attachCDPURL   string
	attachWindow   string
	attachNoBridge bool
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to a live chat page and optimize prompts in place",
	Long: `Open the chat page in a managed browser and attach the optimizer to it.

The session tracks the page's prompt input across re-renders, floats an
optimize control next to it, and rewrites the prompt in place after you
pause typing. Clicking the control captures the input's text (or the
selection when the input is empty) and hands it to a popup session.
Alt+Shift+P rewrites the input immediately, Alt+Shift+O hands off the
current selection.

This command:
1. Launches (or connects to) a Chrome instance
2. Injects the page agent before the chat app loads
3. Registers with the bridge daemon when one is running
4. Tracks, scores, and rewrites the prompt input until interrupted`,
	Example: `  # Attach with defaults
  promptpolish attach

  # Watch a different chat frontend, headless
  promptpolish attach --url https://chat.example.com --headless

  # Attach to an already-running browser
  promptpolish attach --cdp-url ws://127.0.0.1:9222

  # Smaller window, no bridge registration
  promptpolish attach --window 1024x768 --no-bridge`,
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
	attachCmd.Flags().BoolVarP(&attachHeadless, "headless", "H", false, "Run the browser headless")
	attachCmd.Flags().StringVar(&attachURL, "url", "", "Chat page URL (default from PROMPTPOLISH_CHAT_URL)")
	attachCmd.Flags().StringVar(&attachCDPURL, "cdp-url", "", "DevTools websocket of a running browser instead of launching one")
	attachCmd.Flags().StringVar(&attachWindow, "window", "", "Browser window size (e.g. 1280x800)")
	attachCmd.Flags().BoolVar(&attachNoBridge, "no-bridge", false, "Skip bridge daemon registration")
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if attachURL != "" {
		cfg.ChatURL = attachURL
	}
	if attachCDPURL != "" {
		cfg.CDPURL = attachCDPURL
	}

	width, height := 0, 0
	if attachWindow != "" {
		width, height, err = parseWindow(attachWindow)
		if err != nil {
			return fmt.Errorf("invalid window: %w", err)
		}
	}

	ctx := cmd.Context()
	opt := newOptimizerClient(cfg)

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	backendUp := opt.TestConnection(probeCtx)
	cancel()
	if !backendUp {
		pterm.Warning.Printf("Optimization backend unreachable at %s; calls will fail until it is up\n", cfg.APIURL)
	}

	var brg *bridge.Client
	bridgeStatus := "disabled"
	if !attachNoBridge {
		brg = newBridgeClient(cfg)
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		alive := brg.Alive(probeCtx)
		cancel()
		if alive {
			bridgeStatus = "connected"
		} else {
			bridgeStatus = "not running"
			pterm.Info.Println("Bridge daemon not running; selection handoff falls back to the state file")
		}
	}

	store, err := handoff.Open(cfg)
	if err != nil {
		return err
	}

	session := page.NewSession(page.SessionOptions{
		Config:    cfg,
		Optimizer: opt,
		Bridge:    brg,
		Handoff:   store,
		Headless:  attachHeadless,
		WindowW:   width,
		WindowH:   height,
	})

	pterm.Println()
	tableData := pterm.TableData{
		{"Property", "Value"},
		{"Chat URL", cfg.ChatURL},
		{"Backend", cfg.APIURL},
		{"Bridge", bridgeStatus},
		{"Idle window", cfg.IdleWindow().String()},
		{"Optimize hotkey", "Alt+Shift+P"},
		{"Selection hotkey", "Alt+Shift+O"},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
	pterm.Println()
	pterm.Info.Println("Attached. Press Ctrl+C to detach.")

	if err := session.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	pterm.Println()
	pterm.Success.Println("Detached from chat page")
	return nil
}

func parseWindow(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("expected WIDTHxHEIGHT, got %q", s)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("dimensions must be positive, got %q", s)
	}
	return w, h, nil
}
