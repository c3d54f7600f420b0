package cmd

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/config"
	"github.com/promptpolish/cli/internal/handoff"
)

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Inspect or edit the shared text handoff",
	Long: `The handoff is the single text slot shared between attached pages and
popup sessions: the control click and selection hotkey write it, 'popup'
reads it on open.

These commands go through the bridge daemon when one is running, so
attached sessions see the update; otherwise they touch the state file
directly.`,
}

var handoffGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the handed-off text",
	RunE:  runHandoffGet,
}

var handoffSetCmd = &cobra.Command{
	Use:   "set [text]",
	Short: "Store text in the handoff slot",
	RunE:  runHandoffSet,
}

var handoffClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the handoff slot",
	RunE:  runHandoffClear,
}

var handoffFile string

func init() {
	rootCmd.AddCommand(handoffCmd)
	handoffCmd.AddCommand(handoffGetCmd)
	handoffCmd.AddCommand(handoffSetCmd)
	handoffCmd.AddCommand(handoffClearCmd)
	handoffSetCmd.Flags().StringVarP(&handoffFile, "file", "f", "", "Read the text from a file")
}

func runHandoffGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var text string
	if viaBridge(ctx, cfg) {
		text, err = newBridgeClient(cfg).LastText(ctx)
	} else {
		var store handoff.Store
		store, err = handoff.Open(cfg)
		if err == nil {
			text, err = store.Get(ctx)
		}
	}
	if err != nil {
		return err
	}
	if text == "" {
		pterm.Info.Println("Handoff is empty")
		return nil
	}
	pterm.Println(text)
	return nil
}

func runHandoffSet(cmd *cobra.Command, args []string) error {
	text, err := resolvePromptText(args, handoffFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if viaBridge(ctx, cfg) {
		err = newBridgeClient(cfg).SetHandoff(ctx, text)
	} else {
		var store handoff.Store
		store, err = handoff.Open(cfg)
		if err == nil {
			err = store.Set(ctx, text)
		}
	}
	if err != nil {
		return err
	}
	pterm.Success.Printf("Handoff set (%d chars)\n", len(text))
	return nil
}

func runHandoffClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if viaBridge(ctx, cfg) {
		err = newBridgeClient(cfg).ClearHandoff(ctx)
	} else {
		var store handoff.Store
		store, err = handoff.Open(cfg)
		if err == nil {
			err = store.Clear(ctx)
		}
	}
	if err != nil {
		return err
	}
	pterm.Success.Println("Handoff cleared")
	return nil
}

func viaBridge(ctx context.Context, cfg *config.Config) bool {
	return newBridgeClient(cfg).Alive(ctx)
}
