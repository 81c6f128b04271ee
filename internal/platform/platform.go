// Package platform resolves host-specific filesystem conventions.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/coachpo/foghorn/errs"
)

// DefaultLogDir returns the conventional per-user log directory for the
// application on the current platform:
//
//	darwin   ~/Library/Logs/<app>
//	windows  %LOCALAPPDATA%\<app>\Logs
//	other    $XDG_STATE_HOME/<app>/log, else ~/.local/state/<app>/log
//
// The directory is not created; the file sink does that.
func DefaultLogDir(appName string) (string, error) {
	return defaultLogDir(appName, runtime.GOOS)
}

func defaultLogDir(appName, goos string) (string, error) {
	app := strings.TrimSpace(appName)
	if app == "" {
		return "", errs.InvalidConfig("appName", "application name required for the default log directory")
	}

	switch goos {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errs.New("platform", errs.CodeInvalidConfig,
				errs.WithMessage("resolve home directory"),
				errs.WithCause(err))
		}
		return filepath.Join(home, "Library", "Logs", app), nil
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, app, "Logs"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errs.New("platform", errs.CodeInvalidConfig,
				errs.WithMessage("resolve home directory"),
				errs.WithCause(err))
		}
		return filepath.Join(home, "AppData", "Local", app, "Logs"), nil
	default:
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			return filepath.Join(state, app, "log"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errs.New("platform", errs.CodeInvalidConfig,
				errs.WithMessage("resolve home directory"),
				errs.WithCause(err))
		}
		return filepath.Join(home, ".local", "state", app, "log"), nil
	}
}
