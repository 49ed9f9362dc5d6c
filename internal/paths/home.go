package paths

import (
	"os"
	"path/filepath"
)

const envHome = "DATAMOVE_HOME_DIR"

// Home returns the base directory for datamove configuration and state.
// Defaults to ~/.datamove, can be overridden via DATAMOVE_HOME_DIR.
func Home() string {
	if v := os.Getenv(envHome); v != "" {
		return v
	}
	hd, err := os.UserHomeDir()
	if err != nil || hd == "" {
		return ".datamove"
	}
	return filepath.Join(hd, ".datamove")
}

func EnsureHome() (string, error) {
	h := Home()
	if err := os.MkdirAll(h, 0o755); err != nil {
		return "", err
	}
	return h, nil
}

// PIDFile is where a detached server records its process id.
func PIDFile() string {
	return filepath.Join(Home(), "server.pid")
}

// ImportLock is the default host-wide import lock file.
func ImportLock() string {
	return filepath.Join(Home(), "import.lock")
}
