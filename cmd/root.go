package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zalando/go-keyring"

	"github.com/promptpolish/cli/internal/bridge"
	"github.com/promptpolish/cli/internal/config"
	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/logx"
)

// Metadata carries build information injected at release time via ldflags.
type Metadata struct {
	Version   string
	Commit    string
	BuildDate string
}

var metadata = Metadata{Version: "dev"}

// SetMetadata records build info; main calls this before Execute.
func SetMetadata(m Metadata) {
	if m.Version != "" {
		metadata = m
	}
}

// Version reports the CLI version string.
func Version() string { return metadata.Version }

var (
	verbose    bool
	apiURLFlag string
)

var rootCmd = &cobra.Command{
	Use:   "promptpolish",
	Short: "Optimize AI prompts from your terminal and inside the chat page",
	Long: `PromptPolish talks to a locally running prompt optimization backend and
brings its rewriting and scoring to two places: your terminal (optimize,
score, batch, popup) and a live chat page in your browser (attach), where
it tracks the chat input, floats an optimize control next to it, and
rewrites prompts in place while you type.

The backend is expected at http://localhost:8000/api/v1 unless
PROMPTPOLISH_API_URL says otherwise.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logx.Init(logx.Opts{Verbose: verbose})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Optimization service base URL (overrides PROMPTPOLISH_API_URL)")
}

// Root exposes the assembled command tree to main.
func Root() *cobra.Command { return rootCmd }

// addJSONFlag registers the shared --json switch; every read-style command
// offers the same raw output escape hatch.
func addJSONFlag(fs *pflag.FlagSet, target *bool) {
	fs.BoolVar(target, "json", false, "Print the result as JSON")
}

const (
	keyringService = "promptpolish"
	keyringUser    = "api-key"
)

// resolveAPIKey prefers the OS keyring entry over the environment.
func resolveAPIKey(cfg *config.Config) string {
	if key, err := keyring.Get(keyringService, keyringUser); err == nil && key != "" {
		return key
	}
	return cfg.APIKey
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apiURLFlag != "" {
		cfg.APIURL = strings.TrimRight(apiURLFlag, "/")
	}
	return cfg, nil
}

func newOptimizerClient(cfg *config.Config) *optimizer.Client {
	return optimizer.New(optimizer.Options{
		BaseURL: cfg.APIURL,
		APIKey:  resolveAPIKey(cfg),
		Timeout: cfg.Timeout(),
	})
}

func newBridgeClient(cfg *config.Config) *bridge.Client {
	return bridge.NewClient(bridge.ClientOptions{BaseURL: cfg.BridgeURL()})
}
