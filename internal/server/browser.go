package server

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openBrowser asks the desktop to open url. The counter usually runs
// on the player's own machine, so this is a convenience only; callers
// treat failure as a warning.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
