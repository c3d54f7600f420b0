// Package update checks GitHub for newer releases and figures out how this
// binary was installed so upgrade instructions match.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const releasesURL = "https://api.github.com/repos/promptpolish/cli/releases/latest"

// InstallMethod identifies how the binary got onto this machine.
type InstallMethod string

const (
	InstallMethodBrew    InstallMethod = "homebrew"
	InstallMethodNPM     InstallMethod = "npm"
	InstallMethodPNPM    InstallMethod = "pnpm"
	InstallMethodBun     InstallMethod = "bun"
	InstallMethodUnknown InstallMethod = "unknown"
)

// FetchLatest asks GitHub for the newest release tag and its release page.
func FetchLatest(ctx context.Context) (tag string, releaseURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releasesURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("release lookup failed with status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", "", fmt.Errorf("decode release: %w", err)
	}
	if release.TagName == "" {
		return "", "", fmt.Errorf("release has no tag")
	}
	return release.TagName, release.HTMLURL, nil
}

// IsNewerVersion reports whether latest is strictly newer than current.
// Non-semver versions (dev builds) return an error so callers can decide.
func IsNewerVersion(current, latest string) (bool, error) {
	cur, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return false, fmt.Errorf("current version %q: %w", current, err)
	}
	lat, err := semver.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return false, fmt.Errorf("latest version %q: %w", latest, err)
	}
	return lat.GreaterThan(cur), nil
}

// DetectInstallMethod inspects the running binary's path and returns the
// install method plus the resolved path.
func DetectInstallMethod() (InstallMethod, string) {
	exe, err := os.Executable()
	if err != nil {
		return InstallMethodUnknown, ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	for _, r := range installMethodRules() {
		if r.check(exe) {
			return r.method, exe
		}
	}
	return InstallMethodUnknown, exe
}

// SuggestUpgradeCommand returns the one-liner matching this binary's
// install method, defaulting to Homebrew when detection fails.
func SuggestUpgradeCommand() string {
	method, _ := DetectInstallMethod()
	return suggestUpgradeCommandForMethod(method)
}

func suggestUpgradeCommandForMethod(method InstallMethod) string {
	switch method {
	case InstallMethodNPM:
		return "npm i -g @promptpolish/cli@latest"
	case InstallMethodPNPM:
		return "pnpm add -g @promptpolish/cli@latest"
	case InstallMethodBun:
		return "bun add -g @promptpolish/cli@latest"
	default:
		return "brew upgrade promptpolish/tap/promptpolish"
	}
}

type methodRule struct {
	method InstallMethod
	check  func(path string) bool
}

// installMethodRules orders detection so the more specific package manager
// layouts win before the generic Homebrew prefixes.
func installMethodRules() []methodRule {
	return []methodRule{
		{InstallMethodPNPM, pathMatchesPNPM},
		{InstallMethodBun, pathMatchesBun},
		{InstallMethodNPM, pathMatchesNPM},
		{InstallMethodBrew, pathMatchesHomebrew},
	}
}

func pathMatchesNPM(path string) bool {
	return strings.Contains(path, "/.npm-global/") ||
		strings.Contains(path, "/.npm/") ||
		strings.Contains(path, "node_modules/.bin") ||
		strings.Contains(path, "/.local/share/npm/")
}

func pathMatchesBun(path string) bool {
	return strings.Contains(path, "/.bun/bin/")
}

func pathMatchesPNPM(path string) bool {
	return strings.Contains(path, "/.local/share/pnpm/") ||
		strings.Contains(path, "/.pnpm/")
}

func pathMatchesHomebrew(path string) bool {
	return strings.Contains(path, "/opt/homebrew/") ||
		strings.Contains(path, "/Cellar/") ||
		strings.Contains(path, "/.linuxbrew/")
}
