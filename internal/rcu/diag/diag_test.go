package diag

import (
	"os"
	"os/exec"
	"testing"
)

// TestAssertFatalAborts runs Assert(false, ...) in a subprocess, the
// standard Go idiom for testing an os.Exit path without killing the test
// binary itself.
func TestAssertFatalAborts(t *testing.T) {
	if os.Getenv("RCUHPREF_DIAG_CRASH") == "1" {
		Assert(false, "boom %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestAssertFatalAborts")
	cmd.Env = append(os.Environ(), "RCUHPREF_DIAG_CRASH=1")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected subprocess to exit with error, got %v", err)
	}
	if exitErr.ExitCode() != 2 {
		t.Fatalf("got exit code %d, want 2", exitErr.ExitCode())
	}
}

func TestAssertPassesThroughWhenTrue(t *testing.T) {
	Assert(true, "should never fire")
}
