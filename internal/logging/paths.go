package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.helpdesk/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".helpdesk", "logs")
	}
	return filepath.Join(home, ".helpdesk", "logs")
}

// DefaultLogPath returns the default service log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "app.log")
}
