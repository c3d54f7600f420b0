package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/promptpolish/cli/pkg/util"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the optimization service API key",
	Long: `Manage the API key used against the optimization service.

The key is stored in the OS keyring. PROMPTPOLISH_API_KEY works as a
fallback for environments without one (CI, containers); the keyring
entry wins when both are present.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key [key]",
	Short: "Store the API key in the OS keyring",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthSetKey,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from and whether it is still valid",
	RunE:  runAuthStatus,
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the API key from the OS keyring",
	RunE:  runAuthClear,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetKeyCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authClearCmd)
}

func runAuthSetKey(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = strings.TrimSpace(args[0])
	} else {
		entered, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("API key")
		if err != nil {
			return err
		}
		key = strings.TrimSpace(entered)
	}
	if key == "" {
		return fmt.Errorf("API key must not be empty")
	}

	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return fmt.Errorf("failed to store key in the OS keyring: %w", err)
	}
	pterm.Success.Println("API key stored in the OS keyring")

	if exp, ok := tokenExpiry(key); ok {
		if time.Now().After(exp) {
			pterm.Warning.Printf("This key expired on %s\n", util.FormatLocal(exp))
		} else {
			pterm.Info.Printf("Key expires %s\n", util.FormatLocal(exp))
		}
	}
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key, kerr := keyring.Get(keyringService, keyringUser)
	source := ""
	switch {
	case kerr == nil && key != "":
		source = "OS keyring"
	case cfg.APIKey != "":
		key = cfg.APIKey
		source = "environment (PROMPTPOLISH_API_KEY)"
	default:
		pterm.Warning.Println("No API key configured")
		pterm.Info.Println("Set one with: promptpolish auth set-key")
		return nil
	}

	pterm.Success.Printf("API key configured (%s)\n", source)
	pterm.Info.Printf("Key: %s\n", maskKey(key))

	if exp, ok := tokenExpiry(key); ok {
		if time.Now().After(exp) {
			pterm.Warning.Printf("Expired on %s\n", util.FormatLocal(exp))
		} else {
			pterm.Info.Printf("Expires %s\n", util.FormatLocal(exp))
		}
	}
	return nil
}

func runAuthClear(cmd *cobra.Command, args []string) error {
	err := keyring.Delete(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		pterm.Info.Println("No API key stored in the OS keyring")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove key from the OS keyring: %w", err)
	}
	pterm.Success.Println("API key removed from the OS keyring")
	return nil
}

// tokenExpiry extracts the exp claim when the key happens to be a JWT.
// Opaque keys simply report no expiry.
func tokenExpiry(key string) (time.Time, bool) {
	token, _, err := jwt.NewParser().ParseUnverified(key, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
