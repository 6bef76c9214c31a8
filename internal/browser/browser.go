// Package browser opens URLs in the user's default web browser across
// platforms.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// OpenURL opens url in the default browser, preferring the
// platform-agnostic launcher and falling back to OS-specific commands.
func OpenURL(url string) error {
	err := open.Run(url)
	if err == nil {
		log.Debug("opened URL via system launcher")
		return nil
	}
	log.Debugf("system launcher failed: %v, trying platform-specific command", err)
	return openURLPlatformSpecific(url)
}

func openURLPlatformSpecific(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux":
		// Try common launchers in order of preference.
		candidates := []string{"xdg-open", "x-www-browser", "firefox", "chromium", "google-chrome"}
		for _, candidate := range candidates {
			if _, err := exec.LookPath(candidate); err == nil {
				cmd = exec.Command(candidate, url)
				break
			}
		}
		if cmd == nil {
			return fmt.Errorf("no suitable browser found")
		}
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	return nil
}
