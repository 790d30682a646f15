//go:build blackbox

package blackbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var optraderBin string

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "optrader-blackbox-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	optraderBin = filepath.Join(tmp, "optrader")

	// Build the binary once for all tests.
	cmd := exec.Command("go", "build", "-o", optraderBin, "../../cmd/optrader")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

// runIn executes the binary in dir and fails the test on a non-zero exit.
func runIn(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command(optraderBin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		// CombinedOutput merges stdout/stderr; still useful in failures.
		t.Fatalf("command failed: %v\nargs: %v\noutput:\n%s", err, args, string(out))
	}
	return string(out)
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	return runIn(t, "", args...)
}
