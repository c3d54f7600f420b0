package cmd

import (
	"github.com/pkg/browser"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Open the optimization service's API docs in your browser",
	RunE:  runDocs,
}

func init() {
	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url := cfg.DocsURL()
	if err := browser.OpenURL(url); err != nil {
		pterm.Info.Printf("Open %s in your browser\n", url)
		return nil
	}
	pterm.Success.Printf("Opened %s\n", url)
	return nil
}
