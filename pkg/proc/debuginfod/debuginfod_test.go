package debuginfod

import (
	"os"
	"testing"
)

func TestNotConfigured(t *testing.T) {
	old, ok := os.LookupEnv(debuginfodURLsEnv)
	os.Unsetenv(debuginfodURLsEnv)
	defer func() {
		if ok {
			os.Setenv(debuginfodURLsEnv, old)
		}
	}()
	if _, err := GetDebuginfo("0123456789abcdef"); err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
