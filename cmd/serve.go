package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/bridge"
	"github.com/promptpolish/cli/internal/handoff"
)

var (
	serveAddr  string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local bridge daemon",
	Long: `Run the bridge daemon that connects attached chat pages with popup
sessions. The daemon owns the text handoff store, relays pull/push
requests to the attached page, and streams page events to it over SSE.

Attach and popup find the daemon through PROMPTPOLISH_BRIDGE_ADDR; both
work without it, minus the cross-context features.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from PROMPTPOLISH_BRIDGE_ADDR)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Require this bearer token on every request")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.BridgeAddr = serveAddr
	}

	store, err := handoff.Open(cfg)
	if err != nil {
		return err
	}

	daemon := bridge.NewDaemon(bridge.DaemonOptions{
		Addr:    cfg.BridgeAddr,
		Store:   store,
		Version: metadata.Version,
		Token:   serveToken,
	})

	pterm.Info.Printf("Bridge daemon listening on %s\n", cfg.BridgeAddr)
	pterm.Println("Press Ctrl+C to stop")
	return daemon.Run(cmd.Context())
}
