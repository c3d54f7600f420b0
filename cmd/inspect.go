package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpolish/cli/internal/page"
	"github.com/promptpolish/cli/pkg/table"
	"github.com/promptpolish/cli/pkg/util"
)

type strategyMatch struct {
	Strategy string `json:"strategy"`
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`
}

var (
	inspectURL  string
	inspectFile string
	inspectJSON bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Check which input strategies match the chat page's DOM",
	Long: `Fetch the chat page (or read a saved copy) and run every input
locator strategy against its DOM. Useful when the frontend ships a
redesign and tracking stops working: the output shows which selector
still matches and which strategy would win.

Static HTML cannot tell visibility or size, so a match here is
necessary but not sufficient for live tracking.`,
	Example: `  # Inspect the configured chat page
  promptpolish inspect

  # Inspect a saved page
  promptpolish inspect --file chat.html`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectURL, "url", "", "Page URL to fetch (default from PROMPTPOLISH_CHAT_URL)")
	inspectCmd.Flags().StringVar(&inspectFile, "file", "", "Read the page HTML from a file instead of fetching")
	addJSONFlag(inspectCmd.Flags(), &inspectJSON)
}

func runInspect(cmd *cobra.Command, args []string) error {
	var doc *goquery.Document
	var source string

	if inspectFile != "" {
		f, err := os.Open(inspectFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", inspectFile, err)
		}
		defer f.Close()
		doc, err = goquery.NewDocumentFromReader(f)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", inspectFile, err)
		}
		source = inspectFile
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		url := cfg.ChatURL
		if inspectURL != "" {
			url = inspectURL
		}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/html")
		client := &http.Client{Timeout: 15 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetching %s returned %s", url, resp.Status)
		}
		doc, err = goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", url, err)
		}
		source = url
	}

	matches := inspectDocument(doc)
	if inspectJSON {
		return util.PrintPrettyJSON(matches)
	}

	if title := doc.Find("title").First().Text(); title != "" {
		pterm.Info.Printf("Inspecting %s (%s)\n", source, util.Truncate(title, 50))
	} else {
		pterm.Info.Printf("Inspecting %s\n", source)
	}
	pterm.Println()

	rows := pterm.TableData{{"Strategy", "Selector", "Matches"}}
	for _, m := range matches {
		rows = append(rows, []string{m.Strategy, m.Selector, strconv.Itoa(m.Matches)})
	}
	table.Print(rows, true)
	pterm.Println()

	for _, m := range matches {
		if m.Matches > 0 {
			pterm.Success.Printf("Input would be tracked via the %q strategy\n", m.Strategy)
			return nil
		}
	}
	pterm.Warning.Println("No strategy matches this page; the frontend layout may have changed")
	return nil
}

// inspectDocument runs every locator strategy against a parsed document,
// in priority order.
func inspectDocument(doc *goquery.Document) []strategyMatch {
	matches := make([]strategyMatch, 0, len(page.Strategies))
	for _, s := range page.Strategies {
		matches = append(matches, strategyMatch{
			Strategy: s.Name,
			Selector: s.Selector,
			Matches:  doc.Find(s.Selector).Length(),
		})
	}
	return matches
}
