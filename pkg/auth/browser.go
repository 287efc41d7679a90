package auth

import (
	"os/exec"
	"runtime"

	"github.com/route1io/connectors/pkg/errors"
)

// OpenBrowser opens the default browser to the given URL.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return errors.Newf(errors.ErrorTypeConfig, "cannot open a browser on %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeExternal, "failed to run %s", cmd.Path)
	}
	return nil
}
