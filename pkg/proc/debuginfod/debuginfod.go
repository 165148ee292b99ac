// Package debuginfod downloads separate debug info files through the
// debuginfod-find client of elfutils.
package debuginfod

import (
	"errors"
	"os"
	"os/exec"
	"strings"
)

const (
	debuginfodFind       = "debuginfod-find"
	debuginfodURLsEnv    = "DEBUGINFOD_URLS"
	debuginfodMaxtimeEnv = "DEBUGINFOD_MAXTIME"
	debuginfodTimeoutEnv = "DEBUGINFOD_TIMEOUT"
)

// ErrNotConfigured is returned when no debuginfod server is configured.
var ErrNotConfigured = errors.New(debuginfodURLsEnv + " is not set")

func execFind(args ...string) (string, error) {
	if os.Getenv(debuginfodURLsEnv) == "" {
		return "", ErrNotConfigured
	}
	if _, err := exec.LookPath(debuginfodFind); err != nil {
		return "", err
	}
	cmd := exec.Command(debuginfodFind, args...)
	if os.Getenv(debuginfodMaxtimeEnv) == "" || os.Getenv(debuginfodTimeoutEnv) == "" {
		cmd.Env = append(os.Environ(), debuginfodMaxtimeEnv+"=1", debuginfodTimeoutEnv+"=1")
	}
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// GetDebuginfo returns the path of the debug info file for the executable
// with the given hex encoded build ID, downloading it if needed.
func GetDebuginfo(buildid string) (string, error) {
	return execFind("debuginfo", buildid)
}
